package channel

import (
	"github.com/shaojunda/spillman-channel/input"
	"github.com/shaojunda/spillman-channel/wire"
)

// SettlementProposal is an off-ledger, payer-signed candidate settlement.
// The payer issues one per payment event with a strictly greater amount
// than its predecessor; the payee holds only the newest and finalizes
// exactly one by adding its own signature and broadcasting.
type SettlementProposal struct {
	// Amount is the payee's cumulative payment in capacity units.
	Amount uint64

	// Tx is the settlement transaction the proposal commits to, without
	// witnesses.
	Tx *wire.MsgTx

	// PayerSig is the payer's signature over Tx's digest.
	PayerSig input.Signature
}

// RefundProposal is the pre-signed timeout refund. It is created once,
// before the escrow is funded, counter-signed by the payee during setup,
// and finalized by the payer only after the timeout instant has passed.
type RefundProposal struct {
	// Tx is the refund transaction, without witnesses.
	Tx *wire.MsgTx

	// PayeeSigs holds the payee's pre-signature(s): one for a single-sig
	// payee, threshold many for a multisig payee.
	PayeeSigs []input.Signature
}

// CounterSigned reports whether the payee's pre-signature(s) are present.
// The channel must not be funded before this is true.
func (r *RefundProposal) CounterSigned() bool {
	return r != nil && len(r.PayeeSigs) > 0
}
