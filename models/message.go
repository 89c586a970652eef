package models

// InFlightMessage is an outbound block envelope that has not been confirmed
// delivered yet. It survives restarts by being persisted alongside the chain.
type InFlightMessage struct {
	ID          string `json:"id"`
	BillID      string `json:"bill_id"`
	BlockHash   string `json:"block_hash"`
	Recipient   string `json:"recipient"`
	Payload     []byte `json:"payload"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	NextRetry   int64  `json:"next_retry"`
	CreatedAt   int64  `json:"created_at"`
	Failed      bool   `json:"failed"`
}

func (m *InFlightMessage) Due(now int64) bool {
	return !m.Failed && m.NextRetry <= now
}
