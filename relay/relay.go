// Package relay defines the abstraction over the public store-and-forward
// network used to exchange encrypted envelopes between bill participants.
// The wire transport itself is an external collaborator; the core only relies
// on at-least-once publish/subscribe against opaque node addresses.
package relay

import "context"

// Envelope is one encrypted message addressed to a participant. The payload
// is opaque to the relay.
type Envelope struct {
	ID      string
	To      string
	Payload []byte
}

// Relay is the consumed transport interface. Publish may fail transiently;
// delivery is at-least-once and unordered across recipients.
type Relay interface {
	Publish(ctx context.Context, to string, payload []byte) error
	Subscribe(ctx context.Context, address string) (<-chan Envelope, error)
}
