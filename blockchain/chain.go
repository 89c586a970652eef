package blockchain

import (
	"crypto/ecdsa"
)

// Chain is the ordered, hash-linked sequence of signed blocks recording one
// bill's history. Sequence numbers are contiguous starting at 0, every block
// links to its predecessor's hash, and the first block is always an Issue.
type Chain struct {
	Blocks []*Block `json:"blocks"`
}

// NewChain starts a chain for a new bill with its Issue block. The genesis
// block links to the all-zero sentinel hash.
func NewChain(issue *IssueData, signer *ecdsa.PrivateKey, timestamp int64) (*Chain, error) {
	first, err := NewBlock(issue.BillID, 0, GenesisPrevHash, issue, signer, timestamp)
	if err != nil {
		return nil, err
	}
	return &Chain{Blocks: []*Block{first}}, nil
}

// NewChainFromBlocks rebuilds a chain from persisted blocks and verifies it
// end to end.
func NewChainFromBlocks(blocks []*Block) (*Chain, error) {
	if len(blocks) == 0 {
		return nil, structuralErr("chain has no blocks")
	}
	c := &Chain{Blocks: blocks}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return c, nil
}

// Tip returns the latest block.
func (c *Chain) Tip() *Block {
	return c.Blocks[len(c.Blocks)-1]
}

// BillID returns the bill this chain belongs to.
func (c *Chain) BillID() string {
	return c.Blocks[0].BillID
}

// ContainsHash reports whether a block with the given hash is already part of
// the chain. Used for exactly-once application of remote blocks.
func (c *Chain) ContainsHash(hash string) bool {
	for _, b := range c.Blocks {
		if b.Hash == hash {
			return true
		}
	}
	return false
}

// AddBlock appends a block after checking it structurally and against the
// tip. A second block claiming an already-extended predecessor is rejected as
// a fork and never silently replaces the existing successor.
func (c *Chain) AddBlock(b *Block) error {
	if err := b.Verify(); err != nil {
		return err
	}
	if b.BillID != c.BillID() {
		return structuralErr("block belongs to bill %s, chain to bill %s", b.BillID, c.BillID())
	}
	if c.ContainsHash(b.Hash) {
		return ErrDuplicateBlock
	}

	tip := c.Tip()
	if b.PrevHash != tip.Hash {
		// A known predecessor that is not the tip means someone is trying to
		// fork an already-extended block.
		if c.ContainsHash(b.PrevHash) {
			return ErrFork
		}
		return sequenceErr("block %d links to unknown predecessor %s", b.Seq, b.PrevHash)
	}
	if b.Seq != tip.Seq+1 {
		return sequenceErr("expected sequence %d, got %d", tip.Seq+1, b.Seq)
	}
	if b.Op == OpIssue {
		return legalityErr("issue is only valid as the first block")
	}

	c.Blocks = append(c.Blocks, b)
	return nil
}

// Verify walks the whole chain and checks every invariant: per-block
// structure, contiguous sequence numbers from 0, hash links, and an Issue
// block at the start (and nowhere else).
func (c *Chain) Verify() error {
	first := c.Blocks[0]
	if first.Op != OpIssue {
		return legalityErr("first block must be issue, got %s", first.Op)
	}
	if first.Seq != 0 {
		return sequenceErr("first block has sequence %d, want 0", first.Seq)
	}
	if first.PrevHash != GenesisPrevHash {
		return sequenceErr("first block must link to the zero sentinel hash")
	}
	if err := first.Verify(); err != nil {
		return err
	}

	for i := 1; i < len(c.Blocks); i++ {
		cur, prev := c.Blocks[i], c.Blocks[i-1]
		if err := cur.Verify(); err != nil {
			return err
		}
		if cur.BillID != first.BillID {
			return structuralErr("block %d belongs to bill %s, chain to bill %s", cur.Seq, cur.BillID, first.BillID)
		}
		if cur.Op == OpIssue {
			return legalityErr("issue block at height %d", i)
		}
		if cur.Seq != prev.Seq+1 {
			return sequenceErr("block at height %d has sequence %d, want %d", i, cur.Seq, prev.Seq+1)
		}
		if cur.PrevHash != prev.Hash {
			return sequenceErr("block %d does not link to its predecessor's hash", cur.Seq)
		}
	}
	return nil
}

// BlockWithOp returns the latest block carrying the given op code, or nil.
func (c *Chain) BlockWithOp(op OpCode) *Block {
	for i := len(c.Blocks) - 1; i >= 0; i-- {
		if c.Blocks[i].Op == op {
			return c.Blocks[i]
		}
	}
	return nil
}

// HasOp reports whether any block carries the given op code.
func (c *Chain) HasOp(op OpCode) bool {
	return c.BlockWithOp(op) != nil
}
