package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BitcreditProtocol/E-Bill/models"
)

const subscriberBuffer = 64

// NotificationDispatcher fans domain events out to subscribers. Delivery is
// best-effort: a slow or absent subscriber loses events rather than blocking
// block application.
type NotificationDispatcher struct {
	log *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan models.Event
	nextID uint64
	closed bool
}

func NewNotificationDispatcher(log *zap.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		log:  log,
		subs: make(map[uint64]chan models.Event),
	}
}

// Subscribe registers a new event feed. The returned cancel function
// unregisters it and closes the channel.
func (d *NotificationDispatcher) Subscribe() (<-chan models.Event, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan models.Event, subscriberBuffer)
	d.subs[id] = ch

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish sends an event to all subscribers without blocking.
func (d *NotificationDispatcher) Publish(ev models.Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for id, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			d.log.Warn("dropping event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("type", string(ev.Type)),
				zap.String("bill_id", ev.BillID))
		}
	}
}

// Close unregisters all subscribers.
func (d *NotificationDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
