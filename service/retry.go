package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BitcreditProtocol/E-Bill/blockchain"
	"github.com/BitcreditProtocol/E-Bill/models"
)

// maxBackoffShift bounds the exponential backoff at backoff * 2^16.
const maxBackoffShift = 16

// attempt publishes one in-flight message. On success the message is removed;
// on failure its retry schedule advances, and once attempts are exhausted it
// is marked failed and surfaced as a delivery-failure event.
func (e *SyncEngine) attempt(ctx context.Context, msg *models.InFlightMessage) error {
	err := e.relay.Publish(ctx, msg.Recipient, msg.Payload)
	if err == nil {
		return e.store.Delete(msg.ID)
	}

	msg.Attempts++
	if msg.Attempts >= msg.MaxAttempts {
		msg.Failed = true
		if saveErr := e.store.Save(msg); saveErr != nil {
			return saveErr
		}
		e.events.Publish(models.Event{
			Type:      models.EventDeliveryFailed,
			BillID:    msg.BillID,
			BlockHash: msg.BlockHash,
			Reason:    err.Error(),
		})
		e.log.Error("delivery attempts exhausted",
			zap.String("bill_id", msg.BillID),
			zap.String("recipient", msg.Recipient),
			zap.Int("attempts", msg.Attempts))
		return fmt.Errorf("%w: attempts exhausted: %v", blockchain.ErrDelivery, err)
	}

	// Exponential backoff, doubling per attempt. The shift is capped so a
	// generous attempt limit cannot overflow the schedule into the past.
	shift := uint(msg.Attempts - 1)
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	msg.NextRetry = e.clock() + int64(e.backoff.Seconds())<<shift
	if saveErr := e.store.Save(msg); saveErr != nil {
		return saveErr
	}
	return fmt.Errorf("%w: %v", blockchain.ErrDelivery, err)
}

// RetrySweep re-attempts every due in-flight message. Running it twice in the
// same state is a no-op for the second run.
func (e *SyncEngine) RetrySweep(ctx context.Context) {
	msgs, err := e.store.LoadPending()
	if err != nil {
		e.log.Error("loading in-flight messages", zap.Error(err))
		return
	}
	now := e.clock()
	for _, msg := range msgs {
		if !msg.Due(now) {
			continue
		}
		if err := e.attempt(ctx, msg); err != nil && !errors.Is(err, blockchain.ErrDelivery) {
			e.log.Error("retry attempt failed", zap.String("id", msg.ID), zap.Error(err))
		}
	}
}

// CancelPending drops queued envelopes for a bill/recipient pair. Used when a
// counterparty's own later block proves it already holds the chain, so the
// delivery is superseded. Only the queue entry is removed, never the applied
// block.
func (e *SyncEngine) CancelPending(billID, recipient string) {
	msgs, err := e.store.LoadPending()
	if err != nil {
		e.log.Error("loading in-flight messages", zap.Error(err))
		return
	}
	for _, msg := range msgs {
		if msg.BillID != billID || msg.Recipient != recipient {
			continue
		}
		if err := e.store.Delete(msg.ID); err != nil {
			e.log.Error("cancelling in-flight message", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		e.log.Info("cancelled superseded delivery",
			zap.String("bill_id", billID),
			zap.String("recipient", recipient),
			zap.String("block_hash", msg.BlockHash))
	}
}
