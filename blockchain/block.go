package blockchain

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"

	"github.com/BitcreditProtocol/E-Bill/encryption"
)

// HashVersion is the version discriminator included in the hash preimage.
// Field order and types are fixed per version so that hash computation is
// reproducible across implementations.
const HashVersion byte = 1

// GenesisPrevHash is the previous-hash sentinel of a chain's first block.
var GenesisPrevHash = hex.EncodeToString(make([]byte, 32))

// Block is one signed, immutable action record in a bill's chain.
//
// The signer node ID is the hex-encoded compressed secp256k1 public key of
// the signer, so it carries both the identifier and the key the signature
// verifies against. The hash covers every other field; the signature covers
// the hash.
type Block struct {
	BillID       string `json:"bill_id"`
	Seq          uint64 `json:"seq"`
	PrevHash     string `json:"prev_hash"`
	Timestamp    int64  `json:"timestamp"`
	Op           OpCode `json:"op"`
	Payload      []byte `json:"payload"`
	SignerNodeID string `json:"signer_node_id"`
	Signature    []byte `json:"signature"`
	Hash         string `json:"hash"`
}

var cs = encryption.NewCryptoService()

// NewBlock builds, hashes and signs a block carrying the given action. It
// never mutates existing blocks; appending it to a chain is the caller's job.
func NewBlock(billID string, seq uint64, prevHash string, action Action, signer *ecdsa.PrivateKey, timestamp int64) (*Block, error) {
	payload, err := EncodeAction(action)
	if err != nil {
		return nil, structuralErr("encoding %s payload: %v", action.Op(), err)
	}

	b := &Block{
		BillID:       billID,
		Seq:          seq,
		PrevHash:     prevHash,
		Timestamp:    timestamp,
		Op:           action.Op(),
		Payload:      payload,
		SignerNodeID: cs.NodeID(&signer.PublicKey),
	}

	hash, err := b.computeHash()
	if err != nil {
		return nil, err
	}
	b.Hash = hex.EncodeToString(hash)

	sig, err := cs.SignHash(hash, signer)
	if err != nil {
		return nil, structuralErr("signing block: %v", err)
	}
	b.Signature = sig

	return b, nil
}

// computeHash digests the versioned, length-prefixed binary encoding of all
// block fields except the signature and the hash itself.
func (b *Block) computeHash() ([]byte, error) {
	prev, err := hex.DecodeString(b.PrevHash)
	if err != nil {
		return nil, structuralErr("previous hash not hex: %v", err)
	}
	signer, err := hex.DecodeString(b.SignerNodeID)
	if err != nil {
		return nil, structuralErr("signer node id not hex: %v", err)
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(HashVersion)
	writeField(buf, []byte(b.BillID))
	binary.Write(buf, binary.BigEndian, b.Seq)
	writeField(buf, prev)
	binary.Write(buf, binary.BigEndian, b.Timestamp)
	writeField(buf, []byte(b.Op))
	writeField(buf, b.Payload)
	writeField(buf, signer)

	return cs.Keccak256(buf.Bytes()), nil
}

func writeField(buf *bytes.Buffer, field []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(field)))
	buf.Write(field)
}

// VerifyHash recomputes the block's hash from its fields and compares it to
// the stored one.
func (b *Block) VerifyHash() error {
	hash, err := b.computeHash()
	if err != nil {
		return err
	}
	if hex.EncodeToString(hash) != b.Hash {
		return structuralErr("block %d of bill %s: stored hash does not match recomputed hash", b.Seq, b.BillID)
	}
	return nil
}

// VerifySignature checks the signature against the claimed signer's key.
func (b *Block) VerifySignature() error {
	pub, err := cs.PublicKeyFromNodeID(b.SignerNodeID)
	if err != nil {
		return structuralErr("block %d of bill %s: signer key not decodable: %v", b.Seq, b.BillID, err)
	}
	hash, err := hex.DecodeString(b.Hash)
	if err != nil {
		return structuralErr("block %d of bill %s: hash not hex: %v", b.Seq, b.BillID, err)
	}
	if !cs.VerifyHashSignature(hash, b.Signature, pub) {
		return structuralErr("block %d of bill %s: signature does not verify against signer %s", b.Seq, b.BillID, b.SignerNodeID)
	}
	return nil
}

// Verify runs all structural checks on a single block: a well-formed op code,
// a hash that matches the fields and a signature that matches the hash.
func (b *Block) Verify() error {
	if !b.Op.Valid() {
		return structuralErr("unknown op code %q", b.Op)
	}
	if err := b.VerifyHash(); err != nil {
		return err
	}
	return b.VerifySignature()
}

// Action decodes the block's payload into its concrete action.
func (b *Block) Action() (Action, error) {
	return DecodeAction(b.Payload)
}
