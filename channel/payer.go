package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaojunda/spillman-channel/chanfunding"
	"github.com/shaojunda/spillman-channel/input"
	"github.com/shaojunda/spillman-channel/wire"
)

// PayerConfig carries everything a payer-side channel needs. All fields are
// required unless stated otherwise.
type PayerConfig struct {
	// Params is the channel's immutable parameter block.
	Params *input.ChannelParams

	// PayeeDesc is the payee's multisig descriptor, required iff the
	// channel scheme is multisig. Its hash must match the payee
	// authorization hash committed in Params.
	PayeeDesc *input.MultisigDesc

	// Signer signs with the payer's key.
	Signer input.Signer

	// LockCodeHash is the code hash of the channel validator the escrow
	// output is locked by.
	LockCodeHash wire.Hash

	// Capacity is the total escrowed amount in base units.
	Capacity uint64

	// FundingFee, SettlementFee and RefundFee are the absolute fees the
	// respective transactions pay. Fee estimation is an external concern.
	FundingFee    uint64
	SettlementFee uint64
	RefundFee     uint64

	// CellDeps are the code cell dependencies unlock transactions must
	// reference. The signature digest does not cover them.
	CellDeps []wire.OutPoint

	// Broadcaster submits transactions to the ledger.
	Broadcaster chanfunding.Broadcaster

	// TimeSource reports the ledger's aggregate timestamp.
	TimeSource chanfunding.MedianTimeSource
}

// PayerChannel drives the payer side of a channel: escrow creation, the
// refund-before-funding ordering, and issuing strictly increasing
// settlement proposals. Proposal creation is serialized; a single payer
// instance must never issue proposals concurrently against one escrow.
type PayerChannel struct {
	mu sync.Mutex

	cfg   PayerConfig
	state State

	chanPoint wire.OutPoint
	escrowOut *wire.TxOut

	refund *RefundProposal

	// lastAmount is the highest amount proposed so far. Every new
	// proposal must exceed it.
	lastAmount uint64
}

// NewPayerChannel validates the configuration and returns a channel in the
// Setup state.
func NewPayerChannel(cfg PayerConfig) (*PayerChannel, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("missing channel params")
	}
	if cfg.Signer == nil || cfg.Broadcaster == nil || cfg.TimeSource == nil {
		return nil, fmt.Errorf("missing collaborator")
	}
	if input.PubKeyHash(cfg.Signer.PubKey()) != cfg.Params.PayerKeyHash {
		return nil, fmt.Errorf("signer key does not match payer key " +
			"hash")
	}

	if cfg.Params.Scheme.Multisig() {
		if cfg.PayeeDesc == nil {
			return nil, fmt.Errorf("multisig channel needs the " +
				"payee descriptor")
		}
		if cfg.PayeeDesc.Hash() != cfg.Params.PayeeAuthHash {
			return nil, fmt.Errorf("payee descriptor does not "+
				"hash to committed reference %x",
				cfg.Params.PayeeAuthHash)
		}
	}

	return &PayerChannel{cfg: cfg, state: StateSetup}, nil
}

// EscrowLock returns the escrow output's lock script.
func (p *PayerChannel) EscrowLock() wire.Script {
	return input.EscrowLock(p.cfg.LockCodeHash, p.cfg.Params)
}

// State returns the channel's current lifecycle state.
func (p *PayerChannel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FundingIntent provisions the funding transaction from the passed coins
// and prepares the refund proposal for the resulting escrow outpoint. The
// intent is returned unbroadcast: the coins' owner signs it, and
// BroadcastFunding refuses it until the refund is counter-signed.
func (p *PayerChannel) FundingIntent(
	coins []chanfunding.Coin,
	changeLock wire.Script) (chanfunding.Intent, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateSetup {
		return nil, fmt.Errorf("%w: %v", ErrChannelState, p.state)
	}

	assembler := chanfunding.NewCannedAssembler(coins)
	intent, err := assembler.ProvisionChannel(&chanfunding.Request{
		LocalAmt:   p.cfg.Capacity,
		Fee:        p.cfg.FundingFee,
		EscrowLock: input.EscrowLock(p.cfg.LockCodeHash, p.cfg.Params),
		ChangeLock: changeLock,
	})
	if err != nil {
		return nil, err
	}

	chanPoint, err := intent.ChanPoint()
	if err != nil {
		return nil, err
	}
	escrowOut, err := intent.FundingOutput()
	if err != nil {
		return nil, err
	}

	refundTx, err := BuildRefundTx(
		*chanPoint, p.cfg.Capacity, p.cfg.Params, p.cfg.RefundFee,
		p.cfg.CellDeps...,
	)
	if err != nil {
		return nil, err
	}

	p.chanPoint = *chanPoint
	p.escrowOut = escrowOut
	p.refund = &RefundProposal{Tx: refundTx}

	log.Debugf("Provisioned escrow %v with capacity %d", chanPoint,
		p.cfg.Capacity)

	return intent, nil
}

// RefundTx returns a copy of the refund transaction for the payee to
// pre-sign.
func (p *PayerChannel) RefundTx() (*wire.MsgTx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refund == nil {
		return nil, fmt.Errorf("%w: no funding intent yet",
			ErrChannelState)
	}
	return p.refund.Tx.Copy(), nil
}

// AcceptRefundSigs verifies and stores the payee's refund pre-signatures.
// Once this succeeds the channel becomes fundable.
func (p *PayerChannel) AcceptRefundSigs(sigs []input.Signature) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refund == nil {
		return fmt.Errorf("%w: no funding intent yet", ErrChannelState)
	}

	digest := p.refund.Tx.SigHash()
	if p.cfg.Params.Scheme.Multisig() {
		// The refund witness carries exactly Threshold payee
		// signatures; a set of any other size could never be
		// assembled into a decodable unlock, so storing it would
		// strand the escrow behind an unbroadcastable refund.
		if len(sigs) != int(p.cfg.PayeeDesc.Threshold) {
			return fmt.Errorf("expected %d payee signatures, "+
				"got %d", p.cfg.PayeeDesc.Threshold, len(sigs))
		}
		if err := p.cfg.PayeeDesc.VerifySigs(digest, sigs); err != nil {
			return err
		}
	} else {
		if len(sigs) != 1 {
			return fmt.Errorf("expected one payee signature, got "+
				"%d", len(sigs))
		}
		err := input.VerifyDigest(
			sigs[0], digest, p.cfg.Params.PayeeAuthHash,
		)
		if err != nil {
			return err
		}
	}

	p.refund.PayeeSigs = sigs
	log.Infof("Refund for escrow %v counter-signed, channel fundable",
		p.chanPoint)
	return nil
}

// Fundable reports whether the refund proposal carries the payee's
// verified pre-signature(s).
func (p *PayerChannel) Fundable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refund.CounterSigned()
}

// BroadcastFunding submits the signed funding transaction. It refuses to
// proceed until the refund proposal is counter-signed: funding first would
// let the payee strand the escrow by withholding its refund signature.
func (p *PayerChannel) BroadcastFunding(ctx context.Context,
	fundingTx *wire.MsgTx) (wire.Hash, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateSetup {
		return wire.Hash{}, fmt.Errorf("%w: %v", ErrChannelState,
			p.state)
	}
	if !p.refund.CounterSigned() {
		return wire.Hash{}, ErrRefundNotCounterSigned
	}
	if fundingTx.TxHash() != p.chanPoint.Hash {
		return wire.Hash{}, fmt.Errorf("funding tx does not match "+
			"provisioned escrow %v", p.chanPoint)
	}

	txid, err := p.cfg.Broadcaster.Broadcast(ctx, fundingTx)
	if err != nil {
		return wire.Hash{}, err
	}

	p.state = StateFunded
	log.Infof("Channel funded: escrow=%v txid=%v", p.chanPoint, txid)
	return txid, nil
}

// ProposePayment issues a new settlement proposal for the cumulative
// amount. The amount must strictly exceed every previously issued
// proposal's; violations are rejected locally before anything is signed.
func (p *PayerChannel) ProposePayment(
	amount uint64) (*SettlementProposal, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateFunded {
		return nil, fmt.Errorf("%w: %v", ErrChannelState, p.state)
	}
	if amount <= p.lastAmount {
		return nil, fmt.Errorf("%w: %d <= %d", ErrNonMonotonicAmount,
			amount, p.lastAmount)
	}

	tx, err := BuildSettlementTx(
		p.chanPoint, p.cfg.Capacity, p.cfg.Params, amount,
		p.cfg.SettlementFee, p.cfg.CellDeps...,
	)
	if err != nil {
		return nil, err
	}

	sig, err := p.cfg.Signer.SignDigest(tx.SigHash())
	if err != nil {
		return nil, err
	}

	p.lastAmount = amount
	log.Debugf("Issued settlement proposal for %d on escrow %v", amount,
		p.chanPoint)

	return &SettlementProposal{
		Amount:   amount,
		Tx:       tx,
		PayerSig: sig,
	}, nil
}

// FinalizeRefund completes and broadcasts the pre-signed refund. It is
// refused until the ledger's aggregate time has passed the channel
// timeout; that refusal is recoverable and the call can simply be retried
// later.
func (p *PayerChannel) FinalizeRefund(ctx context.Context) (wire.Hash,
	error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateFunded {
		return wire.Hash{}, fmt.Errorf("%w: %v", ErrChannelState,
			p.state)
	}
	if !p.refund.CounterSigned() {
		return wire.Hash{}, ErrRefundNotCounterSigned
	}

	medianTime, err := p.cfg.TimeSource.MedianTime(ctx)
	if err != nil {
		return wire.Hash{}, err
	}
	if uint64(medianTime.Unix()) < p.cfg.Params.Timeout {
		return wire.Hash{}, fmt.Errorf("%w: median time %d < %d",
			ErrTimeoutNotReached, medianTime.Unix(),
			p.cfg.Params.Timeout)
	}

	tx := p.refund.Tx.Copy()
	payerSig, err := p.cfg.Signer.SignDigest(tx.SigHash())
	if err != nil {
		return wire.Hash{}, err
	}

	witness := &input.Witness{
		Path:      input.PathRefund,
		Desc:      p.cfg.PayeeDesc,
		PayeeSigs: p.refund.PayeeSigs,
		PayerSig:  payerSig,
	}
	tx.Witnesses = [][]byte{witness.Encode()}

	txid, err := p.cfg.Broadcaster.Broadcast(ctx, tx)
	if err != nil {
		return wire.Hash{}, err
	}

	p.state = StateRefunded
	log.Infof("Channel refunded: escrow=%v txid=%v", p.chanPoint, txid)
	return txid, nil
}
