package models

type ParticipantType string

const (
	ParticipantIdentified ParticipantType = "identified"
	ParticipantAnonymous  ParticipantType = "anonymous"
)

// BillParticipant is one party of a bill. An identified participant discloses
// a display name; an anonymous one carries only the node ID needed to verify
// its signatures and address encrypted messages to it.
type BillParticipant struct {
	Type   ParticipantType `json:"type"`
	NodeID string          `json:"node_id"`
	Name   string          `json:"name,omitempty"`
}

func (p BillParticipant) Identified() bool {
	return p.Type == ParticipantIdentified
}

func NewIdentifiedParticipant(nodeID, name string) BillParticipant {
	return BillParticipant{Type: ParticipantIdentified, NodeID: nodeID, Name: name}
}

func NewAnonymousParticipant(nodeID string) BillParticipant {
	return BillParticipant{Type: ParticipantAnonymous, NodeID: nodeID}
}
