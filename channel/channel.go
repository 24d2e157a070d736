package channel

import (
	"errors"
)

// State tracks a channel through its lifecycle. Only Setup and Funded carry
// driver behavior; Settled and Refunded are terminal and mutually
// exclusive. The exclusivity is not enforced by anything in this process:
// whichever valid unlock transaction confirms first consumes the escrow,
// and the ledger's single-spend rule makes the other path permanently
// inapplicable.
type State uint8

const (
	// StateSetup is the off-ledger phase: the refund transaction is being
	// built and counter-signed, funding has not been broadcast.
	StateSetup State = iota

	// StateFunded means the funding transaction has been handed to the
	// ledger and payments may flow.
	StateFunded

	// StateSettled means the payee claimed the latest agreed payment.
	StateSettled

	// StateRefunded means the payer reclaimed the escrow after timeout.
	StateRefunded
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case StateSetup:
		return "Setup"
	case StateFunded:
		return "Funded"
	case StateSettled:
		return "Settled"
	case StateRefunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

var (
	// ErrNonMonotonicAmount is returned when a settlement proposal does
	// not strictly increase the payee's amount. Only the newest proposal
	// matters; there is no revocation, so issuing a lower amount would
	// hand the payee a strictly worse transaction it will never use.
	ErrNonMonotonicAmount = errors.New("settlement amount must strictly " +
		"increase")

	// ErrAmountExceedsCapacity is returned when a proposed amount plus
	// fee does not fit into the escrowed capacity.
	ErrAmountExceedsCapacity = errors.New("amount exceeds channel " +
		"capacity")

	// ErrRefundNotCounterSigned is returned when funding is attempted
	// before the refund proposal carries the payee's signature. Funding
	// first would let the payee withhold its refund signature and strand
	// the escrowed funds.
	ErrRefundNotCounterSigned = errors.New("refund proposal not counter-" +
		"signed by payee")

	// ErrTimeoutNotReached is returned when a refund is finalized before
	// the ledger's aggregate time has passed the channel timeout. The
	// caller can retry once time has passed.
	ErrTimeoutNotReached = errors.New("channel timeout not reached")

	// ErrNoProposal is returned when settlement is finalized with no
	// accepted proposal on hand.
	ErrNoProposal = errors.New("no settlement proposal accepted")

	// ErrChannelState is returned when an operation is invoked in a state
	// it is not defined for.
	ErrChannelState = errors.New("operation invalid in current channel " +
		"state")
)
