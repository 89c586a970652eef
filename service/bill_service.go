package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BitcreditProtocol/E-Bill/blockchain"
	"github.com/BitcreditProtocol/E-Bill/encryption"
	"github.com/BitcreditProtocol/E-Bill/identity"
	"github.com/BitcreditProtocol/E-Bill/models"
)

// ChainStore is the persistence the service consumes for bill chains.
type ChainStore interface {
	AppendBlock(billID string, b *blockchain.Block) error
	LoadChain(billID string) (*blockchain.Chain, error)
	Exists(billID string) (bool, error)
	ListBillIDs() ([]string, error)
}

// InFlightStore persists undelivered outbound envelopes.
type InFlightStore interface {
	Save(m *models.InFlightMessage) error
	Delete(id string) error
	LoadPending() ([]*models.InFlightMessage, error)
}

var ErrBillExists = errors.New("bill already exists")

// BillService is the core exposed to the API layer: it validates and appends
// actions, keeps the materialized state cache consistent, hands new blocks to
// the sync engine and emits domain events.
//
// Block application is strictly serialized per bill; operations on different
// bills proceed in parallel.
type BillService struct {
	chains     ChainStore
	identities *identity.Store
	crypto     *encryption.CryptoService
	cache      *StateCache
	sync       *SyncEngine
	events     *NotificationDispatcher
	deadlines  blockchain.Deadlines
	log        *zap.Logger
	clock      func() int64

	mu        sync.Mutex
	billLocks map[string]*sync.Mutex
}

func NewBillService(chains ChainStore, identities *identity.Store, crypto *encryption.CryptoService,
	syncEngine *SyncEngine, events *NotificationDispatcher, deadlines blockchain.Deadlines,
	log *zap.Logger) *BillService {
	s := &BillService{
		chains:     chains,
		identities: identities,
		crypto:     crypto,
		sync:       syncEngine,
		events:     events,
		deadlines:  deadlines,
		log:        log,
		clock:      func() int64 { return time.Now().Unix() },
		billLocks:  make(map[string]*sync.Mutex),
	}
	s.cache = NewStateCache(s.replayBill)
	syncEngine.SetApplier(s)
	return s
}

// billLock returns the per-bill mutex enforcing the single-writer discipline.
func (s *BillService) billLock(billID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.billLocks[billID]
	if !ok {
		l = &sync.Mutex{}
		s.billLocks[billID] = l
	}
	return l
}

func (s *BillService) replayBill(billID string) (*models.BillState, error) {
	chain, err := s.chains.LoadChain(billID)
	if err != nil {
		return nil, err
	}
	return blockchain.Replay(chain, s.clock(), s.deadlines)
}

// IssueBill starts a new bill chain with an Issue block signed by the drawer.
func (s *BillService) IssueBill(ctx context.Context, issue *blockchain.IssueData, signerNodeID string) (*models.BillState, error) {
	if issue.Drawer.NodeID != signerNodeID {
		return nil, fmt.Errorf("%w: only the drawer may issue", blockchain.ErrUnauthorized)
	}
	if issue.Drawee.NodeID == issue.Payee.NodeID {
		return nil, fmt.Errorf("%w: drawee cannot be the payee", blockchain.ErrActionIllegal)
	}
	key, err := s.identities.PrivateKey(signerNodeID)
	if err != nil {
		return nil, err
	}

	lock := s.billLock(issue.BillID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.chains.Exists(issue.BillID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrBillExists
	}

	chain, err := blockchain.NewChain(issue, key, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.chains.AppendBlock(issue.BillID, chain.Tip()); err != nil {
		return nil, err
	}

	return s.afterAppend(ctx, chain, chain.Tip(), signerNodeID, true)
}

// SubmitAction validates a local action against the bill's current state,
// appends the resulting block and returns the new state. Validation failures
// are returned synchronously; nothing is persisted or sent on failure.
func (s *BillService) SubmitAction(ctx context.Context, billID string, action blockchain.Action, signerNodeID string) (*models.BillState, error) {
	key, err := s.identities.PrivateKey(signerNodeID)
	if err != nil {
		return nil, err
	}

	lock := s.billLock(billID)
	lock.Lock()
	defer lock.Unlock()

	chain, err := s.chains.LoadChain(billID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	tip := chain.Tip()
	block, err := blockchain.NewBlock(billID, tip.Seq+1, tip.Hash, action, key, now)
	if err != nil {
		return nil, err
	}
	if err := blockchain.Validate(block, chain, now, s.deadlines); err != nil {
		return nil, err
	}

	if err := s.chains.AppendBlock(billID, block); err != nil {
		return nil, err
	}
	if err := chain.AddBlock(block); err != nil {
		// The block was validated against this very chain; failing here means
		// the store and the in-memory chain diverged.
		return nil, err
	}

	return s.afterAppend(ctx, chain, block, signerNodeID, true)
}

// ApplyRemoteBlock runs a received block through the identical validation
// path a local action takes. A block whose hash is already present is a
// no-op: no duplicate chain entry, no duplicate notification.
func (s *BillService) ApplyRemoteBlock(ctx context.Context, b *blockchain.Block) error {
	lock := s.billLock(b.BillID)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.chains.Exists(b.BillID)
	if err != nil {
		return err
	}

	if !exists {
		// A chain we have never seen can only start with its Issue block.
		if b.Seq != 0 || b.Op != blockchain.OpIssue {
			return fmt.Errorf("%w: first received block of bill %s is not its issue block", blockchain.ErrSequence, b.BillID)
		}
		chain, err := blockchain.NewChainFromBlocks([]*blockchain.Block{b})
		if err != nil {
			s.rejected(b, err)
			return err
		}
		if err := s.chains.AppendBlock(b.BillID, b); err != nil {
			return err
		}
		_, err = s.afterAppend(ctx, chain, b, b.SignerNodeID, false)
		return err
	}

	chain, err := s.chains.LoadChain(b.BillID)
	if err != nil {
		return err
	}
	if chain.ContainsHash(b.Hash) {
		return blockchain.ErrDuplicateBlock
	}

	if err := blockchain.Validate(b, chain, s.clock(), s.deadlines); err != nil {
		s.rejected(b, err)
		return err
	}

	if err := s.chains.AppendBlock(b.BillID, b); err != nil {
		return err
	}
	if err := chain.AddBlock(b); err != nil {
		return err
	}

	_, err = s.afterAppend(ctx, chain, b, b.SignerNodeID, false)
	return err
}

// afterAppend runs the shared post-append path: cache invalidation, state
// rebuild, outbound fan-out for locally authored blocks, and notifications.
func (s *BillService) afterAppend(ctx context.Context, chain *blockchain.Chain, b *blockchain.Block, signer string, broadcast bool) (*models.BillState, error) {
	s.cache.Invalidate(b.BillID)
	state, err := s.cache.Get(b.BillID)
	if err != nil {
		return nil, err
	}

	if broadcast {
		if err := s.sync.Broadcast(ctx, chain, state.Participants(), signer); err != nil {
			// The block is applied either way; delivery has its own retry
			// and failure surface.
			s.log.Error("broadcasting block", zap.String("bill_id", b.BillID), zap.Error(err))
		}
	}

	s.events.Publish(models.Event{
		Type:      models.EventBlockApplied,
		BillID:    b.BillID,
		BlockHash: b.Hash,
		Op:        string(b.Op),
	})
	s.events.Publish(models.Event{
		Type:    models.EventStateChanged,
		BillID:  b.BillID,
		Waiting: state.Waiting,
	})

	s.log.Info("block applied",
		zap.String("bill_id", b.BillID),
		zap.Uint64("seq", b.Seq),
		zap.String("op", string(b.Op)),
		zap.String("signer", signer))
	return state, nil
}

func (s *BillService) rejected(b *blockchain.Block, err error) {
	s.events.Publish(models.Event{
		Type:      models.EventBlockRejected,
		BillID:    b.BillID,
		BlockHash: b.Hash,
		Op:        string(b.Op),
		Reason:    err.Error(),
	})
}

// GetBillState returns the bill's current state, replaying the chain if the
// cache was invalidated.
func (s *BillService) GetBillState(ctx context.Context, billID string) (*models.BillState, error) {
	return s.cache.Get(billID)
}

// ClearCache drops the materialized state for one bill.
func (s *BillService) ClearCache(billID string) {
	s.cache.Clear(billID)
}

// ClearAllCaches drops every materialized state.
func (s *BillService) ClearAllCaches() {
	s.cache.ClearAll()
}

// Subscribe exposes the applied-block / state-change notification feed.
func (s *BillService) Subscribe() (<-chan models.Event, func()) {
	return s.events.Subscribe()
}

// SweepWaitingStates re-evaluates waiting windows against the clock and emits
// a state-change event when one has expired. It walks the persisted bills, not
// just the cached ones, so a window that ran out while the process was down is
// still reported after a restart. Run from the job tick; running it twice in
// the same state emits nothing the second time.
func (s *BillService) SweepWaitingStates(ctx context.Context) {
	billIDs, err := s.chains.ListBillIDs()
	if err != nil {
		s.log.Error("listing bills for waiting-state sweep", zap.Error(err))
		return
	}
	for _, billID := range billIDs {
		old, cached := s.cache.Peek(billID)
		if cached && old.Waiting == models.WaitingNone {
			continue
		}
		chain, err := s.chains.LoadChain(billID)
		if err != nil {
			s.log.Error("loading bill for waiting-state sweep",
				zap.String("bill_id", billID), zap.Error(err))
			continue
		}
		fresh, err := blockchain.Replay(chain, s.clock(), s.deadlines)
		if err != nil {
			s.log.Error("replaying bill for waiting-state sweep",
				zap.String("bill_id", billID), zap.Error(err))
			continue
		}

		var expired bool
		if cached {
			expired = fresh.Waiting != old.Waiting
		} else {
			// Nothing cached to compare against: the tip opened a window that
			// the clock has since closed.
			expired = fresh.Waiting == models.WaitingNone && opensWaitingWindow(chain.Tip().Op)
		}
		if !cached || expired {
			s.cache.Invalidate(billID)
			if _, err := s.cache.Get(billID); err != nil {
				s.log.Error("refreshing bill state after sweep",
					zap.String("bill_id", billID), zap.Error(err))
			}
		}
		if expired {
			s.events.Publish(models.Event{
				Type:    models.EventStateChanged,
				BillID:  billID,
				Waiting: fresh.Waiting,
				Reason:  "waiting window expired",
			})
		}
	}
}

// opensWaitingWindow reports whether the op starts a deadline-bounded waiting
// window when it sits at the tip of a chain.
func opensWaitingWindow(op blockchain.OpCode) bool {
	switch op {
	case blockchain.OpRequestToAccept, blockchain.OpRequestToPay,
		blockchain.OpOfferToSell, blockchain.OpRequestRecourse:
		return true
	}
	return false
}
