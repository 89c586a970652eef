package blockchain

import (
	"errors"
	"fmt"
)

// Error classes. Callers discriminate with errors.Is; the wrapped detail says
// what exactly went wrong.
var (
	// ErrStructural marks a malformed block: hash mismatch, bad signature,
	// undecodable payload. Fatal to that block, never retried as-is.
	ErrStructural = errors.New("block structure invalid")

	// ErrSequence marks a block that does not extend the current tip:
	// non-contiguous sequence number or previous-hash mismatch. The chain is
	// left unchanged.
	ErrSequence = errors.New("block out of sequence")

	// ErrFork marks a second, different block claiming an already-extended
	// predecessor. It is never accepted and never replaces the first.
	ErrFork = fmt.Errorf("%w: fork", ErrSequence)

	// ErrDuplicateBlock marks a block whose hash is already part of the
	// chain. Dropping it is a no-op, not a failure.
	ErrDuplicateBlock = errors.New("block already present")

	// ErrActionIllegal marks an action that is not permitted in the bill's
	// current state.
	ErrActionIllegal = errors.New("action not permitted in current bill state")

	// ErrUnauthorized marks a signer lacking the role an action requires.
	ErrUnauthorized = errors.New("signer not authorized for action")

	// ErrDelivery marks a failed relay publish. Retried on a bounded backoff
	// schedule before being surfaced as a delivery failure.
	ErrDelivery = errors.New("message delivery failed")

	// ErrCrypto marks an envelope that could not be decrypted. The envelope
	// is discarded; the chain is untouched.
	ErrCrypto = errors.New("envelope decryption failed")
)

func structuralErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

func sequenceErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSequence, fmt.Sprintf(format, args...))
}

func legalityErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrActionIllegal, fmt.Sprintf(format, args...))
}

func authErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
