package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BitcreditProtocol/E-Bill/blockchain"
	"github.com/BitcreditProtocol/E-Bill/encryption"
	"github.com/BitcreditProtocol/E-Bill/identity"
	"github.com/BitcreditProtocol/E-Bill/models"
	"github.com/BitcreditProtocol/E-Bill/relay"
)

// BlockApplier applies a remotely received block through the exact validation
// path local actions take.
type BlockApplier interface {
	ApplyRemoteBlock(ctx context.Context, b *blockchain.Block) error
}

// SyncEngine turns validated local appends into encrypted chain envelopes
// delivered at-least-once to counterparties, and feeds inbound envelopes back
// through the validator. Exactly-once application is achieved by hash
// deduplication in the applier, not by the transport.
type SyncEngine struct {
	relay       relay.Relay
	store       InFlightStore
	identities  *identity.Store
	crypto      *encryption.CryptoService
	events      *NotificationDispatcher
	log         *zap.Logger
	maxAttempts int
	backoff     time.Duration
	clock       func() int64

	applier BlockApplier
	wg      sync.WaitGroup
}

func NewSyncEngine(rl relay.Relay, store InFlightStore, identities *identity.Store,
	crypto *encryption.CryptoService, events *NotificationDispatcher,
	maxAttempts int, backoff time.Duration, log *zap.Logger) *SyncEngine {
	return &SyncEngine{
		relay:       rl,
		store:       store,
		identities:  identities,
		crypto:      crypto,
		events:      events,
		log:         log,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		clock:       func() int64 { return time.Now().Unix() },
	}
}

// SetApplier binds the inbound application path. Must be called before Start.
func (e *SyncEngine) SetApplier(a BlockApplier) {
	e.applier = a
}

// Broadcast encrypts the bill's full chain once per participant that is not
// the signer, enqueues each envelope as an in-flight message and attempts an
// immediate publish. The whole chain travels so that a participant added by
// this very block can reconstruct the bill from nothing; receivers drop the
// blocks they already hold. Publish failures are not returned: the message
// stays queued for the retry sweep.
func (e *SyncEngine) Broadcast(ctx context.Context, c *blockchain.Chain, participants []models.BillParticipant, signer string) error {
	plain, err := json.Marshal(c.Blocks)
	if err != nil {
		return err
	}
	tip := c.Tip()
	now := e.clock()

	for _, p := range participants {
		if p.NodeID == signer {
			continue
		}
		pub, err := e.crypto.PublicKeyFromNodeID(p.NodeID)
		if err != nil {
			return fmt.Errorf("%w: recipient key %s: %v", blockchain.ErrCrypto, p.NodeID, err)
		}
		payload, err := e.crypto.Encrypt(plain, pub)
		if err != nil {
			return fmt.Errorf("%w: encrypting for %s: %v", blockchain.ErrCrypto, p.NodeID, err)
		}

		msg := &models.InFlightMessage{
			ID:          uuid.NewString(),
			BillID:      tip.BillID,
			BlockHash:   tip.Hash,
			Recipient:   p.NodeID,
			Payload:     payload,
			MaxAttempts: e.maxAttempts,
			NextRetry:   now,
			CreatedAt:   now,
		}
		if err := e.store.Save(msg); err != nil {
			return err
		}
		if err := e.attempt(ctx, msg); err != nil {
			e.log.Warn("initial publish failed, queued for retry",
				zap.String("bill_id", tip.BillID),
				zap.String("recipient", p.NodeID),
				zap.Error(err))
		}
	}
	return nil
}

// Start subscribes to the relay for every local identity. Inbound envelopes
// are decrypted with the identity's key that received them; the resulting
// block is applied once against the correct chain regardless of which key
// decrypted it.
func (e *SyncEngine) Start(ctx context.Context) error {
	idents, err := e.identities.List()
	if err != nil {
		return err
	}
	for _, ident := range idents {
		if err := e.Listen(ctx, ident); err != nil {
			return err
		}
	}
	return nil
}

// Listen consumes the envelope stream addressed to one local identity.
func (e *SyncEngine) Listen(ctx context.Context, ident *models.Identity) error {
	priv, err := e.crypto.PrivateKeyFromBytes(ident.PrivateKey)
	if err != nil {
		return err
	}
	ch, err := e.relay.Subscribe(ctx, ident.NodeID)
	if err != nil {
		return err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				e.handleEnvelope(ctx, ident.NodeID, priv, env)
			}
		}
	}()
	return nil
}

// handleEnvelope decrypts, decodes and applies one inbound envelope carrying
// a bill's chain. A decryption failure discards the envelope without touching
// any chain; blocks already held are silent no-ops; validation failures stop
// the walk, are logged and surfaced by the applier through the notification
// feed.
func (e *SyncEngine) handleEnvelope(ctx context.Context, address string, priv *ecdsa.PrivateKey, env relay.Envelope) {
	plain, err := e.crypto.Decrypt(env.Payload, priv)
	if err != nil {
		e.log.Warn("discarding undecryptable envelope",
			zap.String("address", address),
			zap.String("envelope_id", env.ID),
			zap.Error(err))
		return
	}

	var blocks []*blockchain.Block
	if err := json.Unmarshal(plain, &blocks); err != nil || len(blocks) == 0 {
		e.log.Warn("discarding undecodable envelope",
			zap.String("address", address),
			zap.String("envelope_id", env.ID),
			zap.Error(err))
		return
	}

	for _, b := range blocks {
		if err := e.applier.ApplyRemoteBlock(ctx, b); err != nil {
			if errors.Is(err, blockchain.ErrDuplicateBlock) {
				e.log.Debug("duplicate block dropped",
					zap.String("bill_id", b.BillID),
					zap.String("hash", b.Hash))
				continue
			}
			e.log.Warn("remote block rejected",
				zap.String("bill_id", b.BillID),
				zap.String("hash", b.Hash),
				zap.Error(err))
			return
		}
	}

	// The sender demonstrably holds this chain; any queued deliveries to them
	// for the bill are superseded.
	tip := blocks[len(blocks)-1]
	e.CancelPending(tip.BillID, tip.SignerNodeID)
}

// Wait blocks until all inbound loops have stopped.
func (e *SyncEngine) Wait() {
	e.wg.Wait()
}
