package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BitcreditProtocol/E-Bill/blockchain"
)

// ErrChainNotFound is returned when no chain exists for a bill ID.
var ErrChainNotFound = errors.New("no chain stored for bill")

// ChainStore persists bill chains block by block. Blocks are keyed by bill ID
// and big-endian sequence number, so a prefix iteration yields them in chain
// order without sorting.
type ChainStore struct {
	db *LevelDB
}

func NewChainStore(db *LevelDB) *ChainStore {
	return &ChainStore{db: db}
}

func blockKey(billID string, seq uint64) []byte {
	key := []byte("bill:" + billID + ":block:")
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return append(key, seqBytes[:]...)
}

func billMarkerKey(billID string) []byte {
	return []byte("billidx:" + billID)
}

// AppendBlock persists one block of a bill's chain. The first block also
// writes a marker key so ListBillIDs can enumerate bills cheaply.
func (s *ChainStore) AppendBlock(billID string, b *blockchain.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.db.Put(blockKey(billID, b.Seq), data); err != nil {
		return err
	}
	if b.Seq == 0 {
		return s.db.Put(billMarkerKey(billID), []byte{1})
	}
	return nil
}

// LoadChain reads all blocks of a bill in order and verifies the resulting
// chain before returning it.
func (s *ChainStore) LoadChain(billID string) (*blockchain.Chain, error) {
	iter := s.db.NewPrefixIterator([]byte("bill:" + billID + ":block:"))
	defer iter.Release()

	var blocks []*blockchain.Block
	for iter.Next() {
		var b blockchain.Block
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decoding stored block for bill %s: %w", billID, err)
		}
		blocks = append(blocks, &b)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, ErrChainNotFound
	}
	return blockchain.NewChainFromBlocks(blocks)
}

// Exists reports whether a chain is stored for the bill.
func (s *ChainStore) Exists(billID string) (bool, error) {
	return s.db.Has(billMarkerKey(billID))
}

// ListBillIDs returns the IDs of all stored bills.
func (s *ChainStore) ListBillIDs() ([]string, error) {
	iter := s.db.NewPrefixIterator([]byte("billidx:"))
	defer iter.Release()

	var ids []string
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len("billidx:"):]))
	}
	return ids, iter.Error()
}
