package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BitcreditProtocol/E-Bill/encryption"
	"github.com/BitcreditProtocol/E-Bill/models"
	"github.com/BitcreditProtocol/E-Bill/storage"
)

func openTestStore(t *testing.T) (*Store, *storage.LevelDB) {
	t.Helper()
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, encryption.NewCryptoService())
	require.NoError(t, err)
	return store, db
}

func TestCreateFirstIdentityBecomesActive(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Active()
	assert.ErrorIs(t, err, ErrNoActiveIdentity)

	ident, err := store.Create("Alice", models.IdentityPersonal)
	require.NoError(t, err)
	assert.NotEmpty(t, ident.NodeID)
	assert.Equal(t, models.IdentityPersonal, ident.Type)

	active, err := store.Active()
	require.NoError(t, err)
	assert.Equal(t, ident.NodeID, active.NodeID)

	// A second identity does not steal the active slot.
	org, err := store.Create("Alice Trading Ltd", models.IdentityOrganizational)
	require.NoError(t, err)

	active, err = store.Active()
	require.NoError(t, err)
	assert.Equal(t, ident.NodeID, active.NodeID)

	require.NoError(t, store.SetActive(org.NodeID))
	active, err = store.Active()
	require.NoError(t, err)
	assert.Equal(t, org.NodeID, active.NodeID)
}

func TestActiveSurvivesReopen(t *testing.T) {
	store, db := openTestStore(t)
	ident, err := store.Create("Alice", models.IdentityPersonal)
	require.NoError(t, err)

	reopened, err := NewStore(db, encryption.NewCryptoService())
	require.NoError(t, err)
	active, err := reopened.Active()
	require.NoError(t, err)
	assert.Equal(t, ident.NodeID, active.NodeID)
}

func TestGetAndList(t *testing.T) {
	store, _ := openTestStore(t)
	a, err := store.Create("Alice", models.IdentityPersonal)
	require.NoError(t, err)
	b, err := store.Create("Bob Co", models.IdentityOrganizational)
	require.NoError(t, err)

	got, err := store.Get(a.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = store.Get("02unknown")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].NodeID, all[1].NodeID}
	assert.ElementsMatch(t, []string{a.NodeID, b.NodeID}, ids)
}

func TestDeleteClearsActive(t *testing.T) {
	store, _ := openTestStore(t)
	ident, err := store.Create("Alice", models.IdentityPersonal)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ident.NodeID))
	_, err = store.Get(ident.NodeID)
	assert.ErrorIs(t, err, ErrIdentityNotFound)
	_, err = store.Active()
	assert.ErrorIs(t, err, ErrNoActiveIdentity)
}

func TestPrivateKeyMatchesNodeID(t *testing.T) {
	store, _ := openTestStore(t)
	ident, err := store.Create("Alice", models.IdentityPersonal)
	require.NoError(t, err)

	key, err := store.PrivateKey(ident.NodeID)
	require.NoError(t, err)

	cs := encryption.NewCryptoService()
	assert.Equal(t, ident.NodeID, cs.NodeID(&key.PublicKey))
}
