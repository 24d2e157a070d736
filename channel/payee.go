package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/shaojunda/spillman-channel/chanfunding"
	"github.com/shaojunda/spillman-channel/chanvalidate"
	"github.com/shaojunda/spillman-channel/input"
	"github.com/shaojunda/spillman-channel/wire"
)

// PayeeConfig carries everything a payee-side channel needs.
type PayeeConfig struct {
	// Params is the channel's immutable parameter block.
	Params *input.ChannelParams

	// Desc is the payee's own multisig descriptor, required iff the
	// channel scheme is multisig.
	Desc *input.MultisigDesc

	// Signers sign with the payee's key(s). A single-sig payee passes
	// one; a multisig payee passes exactly Threshold signers over
	// distinct declared keys, covering the descriptor's required first
	// keys. Witnesses carry exactly Threshold payee signatures, so a
	// larger set could never be assembled into a valid unlock.
	Signers []input.Signer

	// LockCodeHash is the code hash of the channel validator the escrow
	// output is locked by.
	LockCodeHash wire.Hash

	// Capacity is the total escrowed amount in base units.
	Capacity uint64

	// Broadcaster submits transactions to the ledger.
	Broadcaster chanfunding.Broadcaster

	// CoinSource looks up live outputs on the ledger. Used to locate the
	// confirmed escrow.
	CoinSource chanfunding.CoinSource
}

// PayeeChannel drives the payee side of a channel. The payee's obligations
// are narrow but strict: pre-sign only a refund shaped exactly as agreed,
// accept only proposals that strictly raise its amount, and keep only the
// newest accepted proposal.
type PayeeChannel struct {
	mu sync.Mutex

	cfg   PayeeConfig
	state State

	chanPoint wire.OutPoint
	escrow    *chanfunding.Coin

	// best is the newest accepted settlement proposal. Older ones are
	// discarded on acceptance; there is nothing to revoke.
	best *SettlementProposal
}

// NewPayeeChannel validates the configuration and returns a channel in the
// Setup state.
func NewPayeeChannel(cfg PayeeConfig) (*PayeeChannel, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("missing channel params")
	}
	if len(cfg.Signers) == 0 || cfg.Broadcaster == nil ||
		cfg.CoinSource == nil {

		return nil, fmt.Errorf("missing collaborator")
	}

	if cfg.Params.Scheme.Multisig() {
		if cfg.Desc == nil {
			return nil, fmt.Errorf("multisig channel needs a " +
				"descriptor")
		}
		if cfg.Desc.Hash() != cfg.Params.PayeeAuthHash {
			return nil, fmt.Errorf("descriptor does not hash to "+
				"committed reference %x",
				cfg.Params.PayeeAuthHash)
		}
		if err := checkSignerSet(cfg.Desc, cfg.Signers); err != nil {
			return nil, err
		}
	} else {
		if len(cfg.Signers) != 1 {
			return nil, fmt.Errorf("single-sig channel needs "+
				"exactly one signer, got %d", len(cfg.Signers))
		}
		keyHash := input.PubKeyHash(cfg.Signers[0].PubKey())
		if keyHash != cfg.Params.PayeeAuthHash {
			return nil, fmt.Errorf("signer key does not match " +
				"committed key hash")
		}
	}

	return &PayeeChannel{cfg: cfg, state: StateSetup}, nil
}

// checkSignerSet verifies that the configured signers can produce a
// decodable multisig witness: exactly Threshold signers, each operating a
// distinct declared key, with every required first key covered.
func checkSignerSet(desc *input.MultisigDesc, signers []input.Signer) error {
	if len(signers) != int(desc.Threshold) {
		return fmt.Errorf("multisig channel needs exactly %d "+
			"signers, got %d", desc.Threshold, len(signers))
	}

	matched := make([]bool, desc.NumKeys())
	for _, signer := range signers {
		keyHash := input.PubKeyHash(signer.PubKey())
		found := false
		for i, declared := range desc.KeyHashes {
			if matched[i] || keyHash != declared {
				continue
			}
			matched[i] = true
			found = true
			break
		}
		if !found {
			return fmt.Errorf("signer key %x is not a distinct "+
				"declared key", keyHash)
		}
	}

	for i := 0; i < int(desc.RequireFirstN); i++ {
		if !matched[i] {
			return fmt.Errorf("required key %d has no signer", i)
		}
	}
	return nil
}

// State returns the channel's current lifecycle state.
func (p *PayeeChannel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Amount returns the cumulative amount of the newest accepted proposal, or
// zero if none has been accepted yet.
func (p *PayeeChannel) Amount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.best == nil {
		return 0
	}
	return p.best.Amount
}

// PresignRefund checks the proposed refund transaction against the agreed
// channel terms and, if it passes, signs it with every configured signer.
// The checks are the payee's only defense here: a malformed refund it signs
// anyway is a refund the payer can use.
func (p *PayeeChannel) PresignRefund(
	refundTx *wire.MsgTx) ([]input.Signature, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateSetup {
		return nil, fmt.Errorf("%w: %v", ErrChannelState, p.state)
	}
	if err := p.checkRefundShape(refundTx); err != nil {
		return nil, err
	}

	digest := refundTx.SigHash()
	sigs := make([]input.Signature, 0, len(p.cfg.Signers))
	for _, signer := range p.cfg.Signers {
		sig, err := signer.SignDigest(digest)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}

	log.Debugf("Pre-signed refund spending %v",
		refundTx.TxIn[0].PreviousOutPoint)
	return sigs, nil
}

// checkRefundShape verifies that refundTx is exactly the refund the channel
// terms call for: one input delayed to the channel timeout, one output
// returning all but a bounded fee to the payer.
func (p *PayeeChannel) checkRefundShape(tx *wire.MsgTx) error {
	if len(tx.TxIn) != 1 {
		return fmt.Errorf("refund must have one input, got %d",
			len(tx.TxIn))
	}
	if tx.TxIn[0].Since != p.cfg.Params.Timeout {
		return fmt.Errorf("refund input delay %d, want channel "+
			"timeout %d", tx.TxIn[0].Since, p.cfg.Params.Timeout)
	}
	if len(tx.TxOut) != 1 {
		return fmt.Errorf("refund must have one output, got %d",
			len(tx.TxOut))
	}

	out := tx.TxOut[0]
	payerLock := input.PayerLock(p.cfg.Params)
	if !out.Lock.Equal(&payerLock) {
		return fmt.Errorf("refund output not locked to payer")
	}
	if out.Capacity > p.cfg.Capacity {
		return fmt.Errorf("refund output %d exceeds capacity %d",
			out.Capacity, p.cfg.Capacity)
	}
	fee := p.cfg.Capacity - out.Capacity
	if fee > chanvalidate.MaxRefundFee {
		return fmt.Errorf("refund fee %d above ceiling %d", fee,
			chanvalidate.MaxRefundFee)
	}
	return nil
}

// LocateEscrow scans the ledger for the channel's escrow output and, on
// success, moves the channel to the Funded state. It is how the payee
// confirms the payer actually funded before shipping anything of value.
func (p *PayeeChannel) LocateEscrow(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateSetup {
		return fmt.Errorf("%w: %v", ErrChannelState, p.state)
	}

	coins, err := p.cfg.CoinSource.ListCoins(
		ctx, p.cfg.Params.PayeeAuthHash[:],
	)
	if err != nil {
		return err
	}

	escrowLock := input.EscrowLock(p.cfg.LockCodeHash, p.cfg.Params)
	for _, coin := range coins {
		if !coin.Lock.Equal(&escrowLock) {
			continue
		}
		if coin.Capacity != p.cfg.Capacity {
			log.Warnf("Escrow candidate %v has capacity %d, "+
				"want %d", coin.OutPoint, coin.Capacity,
				p.cfg.Capacity)
			continue
		}

		escrow := coin
		p.escrow = &escrow
		p.chanPoint = coin.OutPoint
		p.state = StateFunded

		log.Infof("Located escrow %v with capacity %d", p.chanPoint,
			coin.Capacity)
		return nil
	}

	return fmt.Errorf("escrow output not found on ledger")
}

// AcceptProposal verifies a settlement proposal and, if it passes, replaces
// the previously held one. A proposal is accepted only if it strictly
// raises the payee's amount, matches the agreed transaction shape, and
// carries a valid payer signature.
func (p *PayeeChannel) AcceptProposal(prop *SettlementProposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateFunded {
		return fmt.Errorf("%w: %v", ErrChannelState, p.state)
	}
	if prop == nil || prop.Tx == nil {
		return fmt.Errorf("nil proposal")
	}

	var prev uint64
	if p.best != nil {
		prev = p.best.Amount
	}
	if prop.Amount <= prev {
		return fmt.Errorf("%w: %d <= %d", ErrNonMonotonicAmount,
			prop.Amount, prev)
	}

	if err := p.checkSettlementShape(prop); err != nil {
		return err
	}

	err := input.VerifyDigest(
		prop.PayerSig, prop.Tx.SigHash(), p.cfg.Params.PayerKeyHash,
	)
	if err != nil {
		return fmt.Errorf("payer signature: %w", err)
	}

	p.best = prop
	log.Debugf("Accepted settlement proposal for %d on escrow %v",
		prop.Amount, p.chanPoint)
	log.Tracef("Settlement proposal: %v", newLogClosure(func() string {
		return spew.Sdump(prop.Tx)
	}))
	return nil
}

// checkSettlementShape verifies that the proposal's transaction pays the
// proposal's amount to the payee at output 1, the remainder to the payer at
// output 0, and spends exactly the channel escrow with no delay.
func (p *PayeeChannel) checkSettlementShape(prop *SettlementProposal) error {
	tx := prop.Tx
	if len(tx.TxIn) != 1 {
		return fmt.Errorf("settlement must have one input, got %d",
			len(tx.TxIn))
	}
	if tx.TxIn[0].PreviousOutPoint != p.chanPoint {
		return fmt.Errorf("settlement spends %v, want escrow %v",
			tx.TxIn[0].PreviousOutPoint, p.chanPoint)
	}
	if tx.TxIn[0].Since != 0 {
		return fmt.Errorf("settlement input must not be delayed")
	}
	if len(tx.TxOut) != 2 {
		return fmt.Errorf("settlement must have two outputs, got %d",
			len(tx.TxOut))
	}

	payerOut, payeeOut := tx.TxOut[0], tx.TxOut[1]
	payerLock := input.PayerLock(p.cfg.Params)
	if !payerOut.Lock.Equal(&payerLock) {
		return fmt.Errorf("output 0 not locked to payer")
	}
	payeeLock := input.PayeeLock(p.cfg.Params)
	if !payeeOut.Lock.Equal(&payeeLock) {
		return fmt.Errorf("output 1 not locked to payee")
	}
	if payeeOut.Capacity != prop.Amount {
		return fmt.Errorf("output 1 pays %d, proposal says %d",
			payeeOut.Capacity, prop.Amount)
	}
	if payerOut.Capacity+payeeOut.Capacity > p.cfg.Capacity {
		return fmt.Errorf("outputs total %d over capacity %d",
			payerOut.Capacity+payeeOut.Capacity, p.cfg.Capacity)
	}
	return nil
}

// FinalizeSettlement completes the newest accepted proposal with the
// payee's signature(s) and broadcasts it. The assembled transaction is run
// through the validator first; a transaction this process would not accept
// is not worth the broadcast.
func (p *PayeeChannel) FinalizeSettlement(ctx context.Context) (wire.Hash,
	error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateFunded {
		return wire.Hash{}, fmt.Errorf("%w: %v", ErrChannelState,
			p.state)
	}
	if p.best == nil {
		return wire.Hash{}, ErrNoProposal
	}

	tx := p.best.Tx.Copy()
	digest := tx.SigHash()

	payeeSigs := make([]input.Signature, 0, len(p.cfg.Signers))
	for _, signer := range p.cfg.Signers {
		sig, err := signer.SignDigest(digest)
		if err != nil {
			return wire.Hash{}, err
		}
		payeeSigs = append(payeeSigs, sig)
	}

	witness := &input.Witness{
		Path:      input.PathSettlement,
		Desc:      p.cfg.Desc,
		PayeeSigs: payeeSigs,
		PayerSig:  p.best.PayerSig,
	}
	tx.Witnesses = [][]byte{witness.Encode()}

	err := chanvalidate.Validate(&chanvalidate.Context{
		EscrowOut:    &p.escrow.TxOut,
		EscrowData:   p.escrow.Data,
		SpendTx:      tx,
		GroupIndices: []uint32{0},
	})
	if err != nil {
		return wire.Hash{}, fmt.Errorf("settlement fails validation: "+
			"%w", err)
	}

	txid, err := p.cfg.Broadcaster.Broadcast(ctx, tx)
	if err != nil {
		return wire.Hash{}, err
	}

	p.state = StateSettled
	log.Infof("Channel settled for %d: escrow=%v txid=%v", p.best.Amount,
		p.chanPoint, txid)
	return txid, nil
}
