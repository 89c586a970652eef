package storage

import (
	"encoding/json"

	"github.com/BitcreditProtocol/E-Bill/models"
)

// InFlightStore persists outbound message envelopes that have not been
// confirmed delivered, so pending deliveries survive process restarts.
type InFlightStore struct {
	db *LevelDB
}

func NewInFlightStore(db *LevelDB) *InFlightStore {
	return &InFlightStore{db: db}
}

func inflightKey(id string) []byte {
	return []byte("inflight:" + id)
}

// Save inserts or updates an in-flight message.
func (s *InFlightStore) Save(m *models.InFlightMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Put(inflightKey(m.ID), data)
}

// Delete removes a message after confirmed delivery or cancellation.
func (s *InFlightStore) Delete(id string) error {
	return s.db.Delete(inflightKey(id))
}

// LoadPending returns all persisted messages, delivered-failed ones included;
// the caller filters by Due.
func (s *InFlightStore) LoadPending() ([]*models.InFlightMessage, error) {
	iter := s.db.NewPrefixIterator([]byte("inflight:"))
	defer iter.Release()

	var out []*models.InFlightMessage
	for iter.Next() {
		var m models.InFlightMessage
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, iter.Error()
}
