package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRelay is an in-process loopback relay. It delivers published
// envelopes to every subscriber of the target address and is used for tests
// and single-process wiring.
type MemoryRelay struct {
	mu     sync.RWMutex
	subs   map[string][]chan Envelope
	closed bool
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{subs: make(map[string][]chan Envelope)}
}

func (r *MemoryRelay) Publish(ctx context.Context, to string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}

	env := Envelope{ID: uuid.NewString(), To: to, Payload: payload}
	for _, ch := range r.subs[to] {
		select {
		case ch <- env:
		default:
			// A full subscriber loses the envelope; the sender's retry
			// schedule covers redelivery.
		}
	}
	return nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, address string) (<-chan Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan Envelope, 64)
	r.mu.Lock()
	r.subs[address] = append(r.subs[address], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		chans := r.subs[address]
		for i, c := range chans {
			if c == ch {
				r.subs[address] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// Close stops delivering envelopes. Subscriptions drain via their contexts.
func (r *MemoryRelay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
