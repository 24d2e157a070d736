package channel

import (
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/shaojunda/spillman-channel/chanvalidate"
	"github.com/shaojunda/spillman-channel/input"
	"github.com/shaojunda/spillman-channel/wire"
)

// NewChannelParams assembles the immutable parameter block for a new
// channel whose refund path activates life from now, as measured by the
// passed clock.
func NewChannelParams(c clock.Clock, life time.Duration,
	payerKeyHash, payeeAuthHash [20]byte,
	scheme input.AuthScheme) (*input.ChannelParams, error) {

	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: scheme %d", input.ErrUnknownScheme,
			byte(scheme))
	}
	if life <= 0 {
		return nil, fmt.Errorf("channel life must be positive")
	}

	return &input.ChannelParams{
		PayeeAuthHash: payeeAuthHash,
		PayerKeyHash:  payerKeyHash,
		Timeout:       uint64(c.Now().Add(life).Unix()),
		Scheme:        scheme,
	}, nil
}

// BuildSettlementTx constructs the settlement transaction for a cumulative
// payment of amount: the escrow in, the payer's change at output 0 and the
// payee's payment at output 1. Cell deps may be attached freely since the
// signature digest does not cover them.
func BuildSettlementTx(chanPoint wire.OutPoint, capacity uint64,
	params *input.ChannelParams, amount, fee uint64,
	deps ...wire.OutPoint) (*wire.MsgTx, error) {

	if amount == 0 {
		return nil, fmt.Errorf("%w: zero amount",
			ErrAmountExceedsCapacity)
	}
	if amount+fee > capacity || amount+fee < amount {
		return nil, fmt.Errorf("%w: %d + %d fee over %d",
			ErrAmountExceedsCapacity, amount, fee, capacity)
	}

	tx := wire.NewMsgTx()
	for _, dep := range deps {
		tx.AddCellDep(dep)
	}
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: chanPoint})

	// Output 0 is always the payer, on every path.
	tx.AddTxOut(&wire.TxOut{
		Capacity: capacity - amount - fee,
		Lock:     input.PayerLock(params),
	}, nil)
	tx.AddTxOut(&wire.TxOut{
		Capacity: amount,
		Lock:     input.PayeeLock(params),
	}, nil)
	return tx, nil
}

// BuildRefundTx constructs the timeout refund: the escrow in, with the
// input's timing field set to the channel timeout, and the full remaining
// capacity back to the payer in a single output.
func BuildRefundTx(chanPoint wire.OutPoint, capacity uint64,
	params *input.ChannelParams, fee uint64,
	deps ...wire.OutPoint) (*wire.MsgTx, error) {

	if fee > chanvalidate.MaxRefundFee {
		return nil, fmt.Errorf("refund fee %d above validator "+
			"ceiling %d", fee, chanvalidate.MaxRefundFee)
	}
	if fee >= capacity {
		return nil, fmt.Errorf("%w: fee %d swallows capacity %d",
			ErrAmountExceedsCapacity, fee, capacity)
	}

	tx := wire.NewMsgTx()
	for _, dep := range deps {
		tx.AddCellDep(dep)
	}
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: chanPoint,
		Since:            params.Timeout,
	})
	tx.AddTxOut(&wire.TxOut{
		Capacity: capacity - fee,
		Lock:     input.PayerLock(params),
	}, nil)
	return tx, nil
}
