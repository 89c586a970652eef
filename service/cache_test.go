package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BitcreditProtocol/E-Bill/models"
)

func TestStateCacheRebuildsOncePerInvalidation(t *testing.T) {
	rebuilds := 0
	cache := NewStateCache(func(billID string) (*models.BillState, error) {
		rebuilds++
		return &models.BillState{BillID: billID, BlockHeight: uint64(rebuilds)}, nil
	})

	st, err := cache.Get("bill-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.BlockHeight)

	// A second read serves the cached state.
	st, err = cache.Get("bill-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.BlockHeight)
	assert.Equal(t, 1, rebuilds)

	cache.Invalidate("bill-1")
	st, err = cache.Get("bill-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.BlockHeight)
	assert.Equal(t, 2, rebuilds)
}

func TestStateCachePeekNeverRebuilds(t *testing.T) {
	rebuilds := 0
	cache := NewStateCache(func(billID string) (*models.BillState, error) {
		rebuilds++
		return &models.BillState{BillID: billID}, nil
	})

	_, ok := cache.Peek("bill-1")
	assert.False(t, ok)
	assert.Equal(t, 0, rebuilds)

	_, err := cache.Get("bill-1")
	require.NoError(t, err)

	st, ok := cache.Peek("bill-1")
	require.True(t, ok)
	assert.Equal(t, "bill-1", st.BillID)
	assert.Equal(t, 1, rebuilds)
}

func TestStateCacheErrorIsNotCached(t *testing.T) {
	fail := true
	cache := NewStateCache(func(billID string) (*models.BillState, error) {
		if fail {
			return nil, errors.New("chain unreadable")
		}
		return &models.BillState{BillID: billID}, nil
	})

	_, err := cache.Get("bill-1")
	require.Error(t, err)

	fail = false
	st, err := cache.Get("bill-1")
	require.NoError(t, err)
	assert.Equal(t, "bill-1", st.BillID)
}

func TestStateCacheKeysAndClearAll(t *testing.T) {
	cache := NewStateCache(func(billID string) (*models.BillState, error) {
		return &models.BillState{BillID: billID}, nil
	})

	_, err := cache.Get("bill-1")
	require.NoError(t, err)
	_, err = cache.Get("bill-2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bill-1", "bill-2"}, cache.Keys())

	cache.Clear("bill-1")
	assert.ElementsMatch(t, []string{"bill-2"}, cache.Keys())

	cache.ClearAll()
	assert.Empty(t, cache.Keys())
}
