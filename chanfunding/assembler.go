package chanfunding

import (
	"context"
	"time"

	"github.com/shaojunda/spillman-channel/wire"
)

// Coin is a spendable output under the caller's control, together with its
// outpoint and payload data.
type Coin struct {
	wire.TxOut

	// OutPoint identifies the output on the ledger.
	OutPoint wire.OutPoint

	// Data is the output's payload data.
	Data []byte
}

// CoinSource allows a caller to discover spendable outputs on the ledger.
// Lookups are keyed by a lock-args prefix so a payee can cheaply enumerate
// every channel escrow committing to its authorization hash.
type CoinSource interface {
	// ListCoins returns all spendable outputs whose lock script args
	// start with the given prefix.
	ListCoins(ctx context.Context, argsPrefix []byte) ([]Coin, error)

	// CoinFromOutPoint locates a single output by its outpoint.
	CoinFromOutPoint(ctx context.Context, op wire.OutPoint) (*Coin, error)
}

// MedianTimeSource reports the ledger's aggregate timestamp: the median
// over a recent window of block checkpoints. Timeout decisions are made
// against this value, never against a single checkpoint's self-reported
// time.
type MedianTimeSource interface {
	// MedianTime returns the current aggregate timestamp.
	MedianTime(ctx context.Context) (time.Time, error)
}

// Broadcaster submits a fully authorized transaction to the ledger.
type Broadcaster interface {
	// Broadcast submits the transaction and returns its id, or the
	// ledger's rejection reason.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (wire.Hash, error)
}

// Request describes the escrow output a funding flow should provision. Fee
// estimation and coin selection both live outside this package; the caller
// supplies an absolute fee and an Assembler that already knows its coins.
type Request struct {
	// LocalAmt is the capacity the payer places into the escrow output.
	LocalAmt uint64

	// Fee is the absolute fee the funding transaction pays.
	Fee uint64

	// EscrowLock is the escrow output's lock script: the channel
	// validator's code hash parameterized by the encoded channel
	// parameters.
	EscrowLock wire.Script

	// ChangeLock receives any capacity left over after the escrow output
	// and fee.
	ChangeLock wire.Script
}

// Intent represents a provisioned funding flow that has not yet been
// broadcast. Cancel releases any resources reserved for it.
type Intent interface {
	// FundingOutput returns the escrow output the funding transaction
	// creates.
	FundingOutput() (*wire.TxOut, error)

	// ChanPoint returns the outpoint that will hold the escrow once the
	// funding transaction confirms.
	ChanPoint() (*wire.OutPoint, error)

	// FundingTx returns the assembled funding transaction. Witnesses for
	// the spent coins are left to their owner's wallet.
	FundingTx() (*wire.MsgTx, error)

	// Cancel abandons the intent.
	Cancel()
}

// Assembler turns a funding request into a concrete Intent.
type Assembler interface {
	// ProvisionChannel provisions a funding transaction for the passed
	// request.
	ProvisionChannel(req *Request) (Intent, error)
}
