package identity

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/BitcreditProtocol/E-Bill/encryption"
	"github.com/BitcreditProtocol/E-Bill/models"
	"github.com/BitcreditProtocol/E-Bill/storage"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrNoActiveIdentity = errors.New("no active identity configured")
)

const activeKey = "identity_active"

// Store owns the local signing identities: one personal identity and any
// number of organizational identities controlled by the same user. Identity
// records are never mutated in place; role changes create a new record.
type Store struct {
	db     *storage.LevelDB
	crypto *encryption.CryptoService

	mu     sync.RWMutex
	active string
}

func NewStore(db *storage.LevelDB, crypto *encryption.CryptoService) (*Store, error) {
	s := &Store{db: db, crypto: crypto}

	raw, err := db.Get([]byte(activeKey))
	switch {
	case err == nil:
		s.active = string(raw)
	case storage.IsNotFound(err):
	default:
		return nil, err
	}
	return s, nil
}

func identityKey(nodeID string) []byte {
	return []byte("identity:" + nodeID)
}

// Create generates a fresh key pair and persists a new identity. The first
// identity created becomes the active one.
func (s *Store) Create(name string, typ models.IdentityType) (*models.Identity, error) {
	key, err := s.crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	ident := &models.Identity{
		NodeID:     s.crypto.NodeID(&key.PublicKey),
		Name:       name,
		Type:       typ,
		PrivateKey: s.crypto.PrivateKeyToBytes(key),
		CreatedAt:  time.Now().Unix(),
	}

	data, err := json.Marshal(ident)
	if err != nil {
		return nil, err
	}
	if err := s.db.Put(identityKey(ident.NodeID), data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		if err := s.db.Put([]byte(activeKey), []byte(ident.NodeID)); err != nil {
			return nil, err
		}
		s.active = ident.NodeID
	}
	return ident, nil
}

// Get looks an identity up by its node ID.
func (s *Store) Get(nodeID string) (*models.Identity, error) {
	raw, err := s.db.Get(identityKey(nodeID))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	var ident models.Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// List returns all local identities.
func (s *Store) List() ([]*models.Identity, error) {
	iter := s.db.NewPrefixIterator([]byte("identity:"))
	defer iter.Release()

	var out []*models.Identity
	for iter.Next() {
		var ident models.Identity
		if err := json.Unmarshal(iter.Value(), &ident); err != nil {
			return nil, err
		}
		out = append(out, &ident)
	}
	return out, iter.Error()
}

// Active returns the currently active identity.
func (s *Store) Active() (*models.Identity, error) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()

	if active == "" {
		return nil, ErrNoActiveIdentity
	}
	return s.Get(active)
}

// SetActive switches the active identity.
func (s *Store) SetActive(nodeID string) error {
	if _, err := s.Get(nodeID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(activeKey), []byte(nodeID)); err != nil {
		return err
	}
	s.active = nodeID
	return nil
}

// Delete removes an identity and its key material. Only explicit local
// deletion destroys an identity.
func (s *Store) Delete(nodeID string) error {
	if err := s.db.Delete(identityKey(nodeID)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nodeID {
		s.active = ""
		return s.db.Delete([]byte(activeKey))
	}
	return nil
}

// PrivateKey returns the decoded signing key of an identity.
func (s *Store) PrivateKey(nodeID string) (*ecdsa.PrivateKey, error) {
	ident, err := s.Get(nodeID)
	if err != nil {
		return nil, err
	}
	return s.crypto.PrivateKeyFromBytes(ident.PrivateKey)
}
