package models

type EventType string

const (
	EventBlockApplied    EventType = "block_applied"
	EventStateChanged    EventType = "state_changed"
	EventDeliveryFailed  EventType = "delivery_failed"
	EventBlockRejected   EventType = "block_rejected"
)

// Event is a domain notification fanned out to subscribers. Delivery is
// best-effort and never gates chain or cache correctness.
type Event struct {
	Type      EventType    `json:"type"`
	BillID    string       `json:"bill_id"`
	BlockHash string       `json:"block_hash,omitempty"`
	Op        string       `json:"op,omitempty"`
	Waiting   WaitingState `json:"waiting,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp int64        `json:"timestamp"`
}
