package chanfunding

import (
	"fmt"

	"github.com/shaojunda/spillman-channel/wire"
)

// ShimIntent is the Intent produced by the CannedAssembler: a funding
// transaction assembled from coins that were selected outside this package,
// for example by a wallet or a hardware signer.
type ShimIntent struct {
	// fundingTx is the assembled but not yet authorized funding
	// transaction.
	fundingTx *wire.MsgTx

	// escrowIndex is the index of the escrow output within fundingTx.
	escrowIndex uint32

	// onCancel, if set, releases the reserved coins.
	onCancel func()
}

// A compile-time check to ensure ShimIntent adheres to the Intent interface.
var _ Intent = (*ShimIntent)(nil)

// FundingOutput returns the escrow output the funding transaction creates.
//
// NOTE: This method satisfies the chanfunding.Intent interface.
func (s *ShimIntent) FundingOutput() (*wire.TxOut, error) {
	if s.fundingTx == nil {
		return nil, fmt.Errorf("funding output not constructed")
	}
	return s.fundingTx.TxOut[s.escrowIndex], nil
}

// ChanPoint returns the outpoint that will hold the escrow once the funding
// transaction confirms.
//
// NOTE: This method satisfies the chanfunding.Intent interface.
func (s *ShimIntent) ChanPoint() (*wire.OutPoint, error) {
	if s.fundingTx == nil {
		return nil, fmt.Errorf("chan point unknown, funding output " +
			"not constructed")
	}
	return &wire.OutPoint{
		Hash:  s.fundingTx.TxHash(),
		Index: s.escrowIndex,
	}, nil
}

// FundingTx returns the assembled funding transaction.
//
// NOTE: This method satisfies the chanfunding.Intent interface.
func (s *ShimIntent) FundingTx() (*wire.MsgTx, error) {
	if s.fundingTx == nil {
		return nil, fmt.Errorf("funding tx not constructed")
	}
	return s.fundingTx, nil
}

// Cancel abandons the intent and releases any reserved coins.
//
// NOTE: This method satisfies the chanfunding.Intent interface.
func (s *ShimIntent) Cancel() {
	if s.onCancel != nil {
		s.onCancel()
	}
}

// CannedAssembler assembles funding transactions from a fixed set of
// pre-selected coins. Coin selection proper lives with the wallet backing
// the CoinSource; this assembler only spends what it is handed.
type CannedAssembler struct {
	coins []Coin
}

// A compile-time check to ensure CannedAssembler adheres to the Assembler
// interface.
var _ Assembler = (*CannedAssembler)(nil)

// NewCannedAssembler returns an assembler spending exactly the passed
// coins.
func NewCannedAssembler(coins []Coin) *CannedAssembler {
	return &CannedAssembler{coins: coins}
}

// ProvisionChannel assembles the funding transaction: all canned coins in,
// the escrow output at index 0, and any remainder beyond the fee paid back
// to the change lock.
//
// NOTE: This method satisfies the chanfunding.Assembler interface.
func (c *CannedAssembler) ProvisionChannel(req *Request) (Intent, error) {
	if len(c.coins) == 0 {
		return nil, fmt.Errorf("no coins to fund with")
	}

	var totalIn uint64
	tx := wire.NewMsgTx()
	for _, coin := range c.coins {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: coin.OutPoint})
		totalIn += coin.Capacity
	}

	if totalIn < req.LocalAmt+req.Fee {
		return nil, fmt.Errorf("insufficient coins: have %d, need "+
			"%d + %d fee", totalIn, req.LocalAmt, req.Fee)
	}

	log.Debugf("Assembling funding tx from %d coins totaling %d, "+
		"escrowing %d", len(c.coins), totalIn, req.LocalAmt)

	tx.AddTxOut(&wire.TxOut{
		Capacity: req.LocalAmt,
		Lock:     req.EscrowLock,
	}, nil)

	if change := totalIn - req.LocalAmt - req.Fee; change > 0 {
		tx.AddTxOut(&wire.TxOut{
			Capacity: change,
			Lock:     req.ChangeLock,
		}, nil)
	}

	return &ShimIntent{fundingTx: tx, escrowIndex: 0}, nil
}
