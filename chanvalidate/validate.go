package chanvalidate

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shaojunda/spillman-channel/input"
	"github.com/shaojunda/spillman-channel/wire"
)

const (
	// MaxRefundFee is the highest fee the refund path may pay, in base
	// capacity units. The refund transaction is constructed long before
	// it is broadcast, so the payer's pre-signed fee could otherwise be
	// inflated by a malformed rebuild.
	MaxRefundFee = 100_000_000

	// tokenAmountSize is the size of the token amount prefix in an
	// output's payload data: a little-endian u128.
	tokenAmountSize = 16
)

var (
	// ErrMalformed is returned when the escrow configuration or the
	// unlock witness cannot be decoded. Length and field mismatches are
	// always fatal to the transaction and never partially accepted.
	ErrMalformed = errors.New("malformed channel spend")

	// ErrUnsupportedVersion is returned for a parameter block with a
	// format version other than 0.
	ErrUnsupportedVersion = errors.New("unsupported params version")

	// ErrUnknownPath is returned when the witness carries an unlock path
	// tag outside the two defined paths.
	ErrUnknownPath = errors.New("unknown unlock path")

	// ErrMultipleEscrowInputs is returned when more than one input under
	// the escrow lock is consumed by a single transaction.
	ErrMultipleEscrowInputs = errors.New("multiple escrow inputs")

	// ErrDescriptorMismatch is returned when the multisig descriptor
	// revealed in the witness does not hash to the authorization
	// reference the channel committed to. Without this check a forged
	// descriptor could be substituted at spend time.
	ErrDescriptorMismatch = errors.New("multisig descriptor does not " +
		"match committed hash")

	// ErrAuthorizationFailed is returned when signature or threshold
	// verification fails on either side.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrTimeoutNotReached is returned when the refund path is attempted
	// before the channel timeout. Fatal for this attempt, but expected to
	// resolve once ledger time passes the timeout.
	ErrTimeoutNotReached = errors.New("refund timeout not reached")

	// ErrOutputShapeViolation is returned when the spending transaction's
	// outputs do not match the exact count and destinations required by
	// the active unlock path.
	ErrOutputShapeViolation = errors.New("output shape violation")

	// ErrExcessiveFee is returned when the refund path pays a fee above
	// MaxRefundFee.
	ErrExcessiveFee = errors.New("excessive refund fee")

	// ErrTokenAmountMismatch is returned when token amounts in output
	// payloads violate the active path's conservation rules.
	ErrTokenAmountMismatch = errors.New("token amount mismatch")
)

// Context is the full input to a single validation decision. All fields
// describe either the transaction under validation or the escrow's own
// recorded configuration; the validator reads nothing else and keeps no
// state across invocations.
type Context struct {
	// EscrowOut is the escrow output being spent, exactly as recorded on
	// chain. Its lock script args carry the channel parameter block.
	EscrowOut *wire.TxOut

	// EscrowData is the escrow output's payload data. For token channels
	// this holds the escrowed token amount.
	EscrowData []byte

	// SpendTx is the transaction attempting to unlock the escrow.
	SpendTx *wire.MsgTx

	// GroupIndices are the indices of the inputs of SpendTx that are
	// guarded by the escrow's lock script, as resolved by the validation
	// environment.
	GroupIndices []uint32

	// MedianTime is the ledger-supplied aggregate timestamp in seconds
	// since the unix epoch: the median over a recent window of block
	// checkpoints rather than any single checkpoint's self-reported
	// time.
	MedianTime uint64
}

// Validate decides whether the proposed transaction is a legitimate unlock
// of the channel escrow. It is a pure, single-shot decision: a nil return
// accepts the spend, any error rejects it with the reason. Work and memory
// are bounded by the declared multisig key count.
func Validate(ctx *Context) error {
	if ctx.EscrowOut == nil || ctx.SpendTx == nil {
		return fmt.Errorf("%w: missing escrow or transaction",
			ErrMalformed)
	}
	if len(ctx.GroupIndices) == 0 {
		return fmt.Errorf("%w: no escrow input", ErrMalformed)
	}
	if len(ctx.GroupIndices) > 1 {
		return ErrMultipleEscrowInputs
	}

	inputIndex := ctx.GroupIndices[0]
	tx := ctx.SpendTx
	if int(inputIndex) >= len(tx.TxIn) ||
		int(inputIndex) >= len(tx.Witnesses) {

		return fmt.Errorf("%w: escrow input index %d out of range",
			ErrMalformed, inputIndex)
	}
	if len(tx.OutputsData) != len(tx.TxOut) {
		return fmt.Errorf("%w: %d outputs with %d payloads",
			ErrMalformed, len(tx.TxOut), len(tx.OutputsData))
	}

	params, err := input.DecodeParams(ctx.EscrowOut.Lock.Args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if params.Version != 0 {
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion,
			params.Version)
	}

	witness, err := input.DecodeWitness(
		tx.Witnesses[inputIndex], params.Scheme,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// A channel that committed to a multisig payee committed only to the
	// descriptor's hash. Bind the revealed descriptor to it before any
	// signature is considered.
	if params.Scheme.Multisig() &&
		witness.Desc.Hash() != params.PayeeAuthHash {

		return ErrDescriptorMismatch
	}

	// The digest covers the structural transaction fields only; it is
	// identical for every signer and computed exactly once.
	digest := tx.SigHash()

	switch witness.Path {
	case input.PathSettlement:
		if err := validateSettlementShape(ctx, params); err != nil {
			return err
		}
		return verifySignatures(params, witness, digest)

	case input.PathRefund:
		if err := validateTimeout(ctx, params, inputIndex); err != nil {
			return err
		}
		if err := validateRefundShape(ctx, params); err != nil {
			return err
		}
		return verifySignatures(params, witness, digest)

	default:
		return fmt.Errorf("%w: tag %d", ErrUnknownPath,
			byte(witness.Path))
	}
}

// validateSettlementShape enforces the settlement path's output contract:
// exactly two outputs, with output 0 paying the payer's recorded
// authorization and output 1 paying the payee's. Signatures bind amounts,
// but the destination slots themselves must be pinned here; otherwise a
// structurally rearranged transaction could redirect value while the signed
// amounts appear unchanged. Output 0 is always the payer, on every path.
func validateSettlementShape(ctx *Context, params *input.ChannelParams) error {
	tx := ctx.SpendTx
	if len(tx.TxOut) != 2 {
		return fmt.Errorf("%w: settlement needs exactly 2 outputs, "+
			"got %d", ErrOutputShapeViolation, len(tx.TxOut))
	}

	payerLock := input.PayerLock(params)
	if !tx.TxOut[0].Lock.Equal(&payerLock) {
		return fmt.Errorf("%w: output 0 is not the payer",
			ErrOutputShapeViolation)
	}

	payeeLock := input.PayeeLock(params)
	if !tx.TxOut[1].Lock.Equal(&payeeLock) {
		return fmt.Errorf("%w: output 1 is not the payee",
			ErrOutputShapeViolation)
	}

	return validateSettlementTokens(ctx)
}

// validateSettlementTokens enforces token consistency on the settlement
// path. A token channel must pay out under the same token contract on both
// outputs, and the payee's output must carry a non-zero amount; a pure
// capacity channel must not grow token outputs.
func validateSettlementTokens(ctx *Context) error {
	tx := ctx.SpendTx
	escrowType := ctx.EscrowOut.Type

	if escrowType == nil {
		if tx.TxOut[0].Type != nil || tx.TxOut[1].Type != nil {
			return fmt.Errorf("%w: unexpected token output",
				ErrTokenAmountMismatch)
		}
		return nil
	}

	for i := 0; i < 2; i++ {
		outType := tx.TxOut[i].Type
		if outType != nil && !outType.Equal(escrowType) {
			return fmt.Errorf("%w: output %d token contract "+
				"differs from escrow", ErrTokenAmountMismatch, i)
		}
	}

	// The payee is being paid: when its output rides the token contract,
	// the token amount must be non-zero.
	if tx.TxOut[1].Type != nil {
		amount := tx.OutputsData[1]
		if len(amount) < tokenAmountSize {
			return fmt.Errorf("%w: short payee token payload",
				ErrTokenAmountMismatch)
		}
		if isZero(amount[:tokenAmountSize]) {
			return fmt.Errorf("%w: zero payee token amount",
				ErrTokenAmountMismatch)
		}
	}
	return nil
}

// validateTimeout enforces the refund path's timing rule. Both the
// transaction's own declared timing field and the ledger's aggregate
// timestamp must have reached the recorded timeout; the comparison is
// against the median of recent checkpoints so a single miner's clock cannot
// open the refund path early.
func validateTimeout(ctx *Context, params *input.ChannelParams,
	inputIndex uint32) error {

	since := ctx.SpendTx.TxIn[inputIndex].Since
	if since < params.Timeout {
		return fmt.Errorf("%w: input since %d below timeout %d",
			ErrTimeoutNotReached, since, params.Timeout)
	}
	if ctx.MedianTime < params.Timeout {
		return fmt.Errorf("%w: median time %d below timeout %d",
			ErrTimeoutNotReached, ctx.MedianTime, params.Timeout)
	}
	return nil
}

// validateRefundShape enforces the refund path's output contract: exactly
// one output, paying the payer's recorded authorization, preserving the
// escrowed token payload in full, and paying at most MaxRefundFee in
// capacity.
func validateRefundShape(ctx *Context, params *input.ChannelParams) error {
	tx := ctx.SpendTx
	if len(tx.TxOut) != 1 {
		return fmt.Errorf("%w: refund needs exactly 1 output, got %d",
			ErrOutputShapeViolation, len(tx.TxOut))
	}

	payerLock := input.PayerLock(params)
	if !tx.TxOut[0].Lock.Equal(&payerLock) {
		return fmt.Errorf("%w: refund output is not the payer",
			ErrOutputShapeViolation)
	}

	escrowType := ctx.EscrowOut.Type
	outType := tx.TxOut[0].Type
	switch {
	case escrowType == nil && outType != nil:
		return fmt.Errorf("%w: unexpected token output",
			ErrTokenAmountMismatch)

	case escrowType != nil && outType != nil:
		if !outType.Equal(escrowType) {
			return fmt.Errorf("%w: refund token contract differs "+
				"from escrow", ErrTokenAmountMismatch)
		}
		// Full refund: the payer takes back the entire token payload.
		if !bytes.Equal(tx.OutputsData[0], ctx.EscrowData) {
			return fmt.Errorf("%w: refund must return the full "+
				"token payload", ErrTokenAmountMismatch)
		}
	}

	// Capacity conservation: what the single output does not claim is
	// fee, and a pre-signed refund must not leak more than the ceiling.
	refunded := tx.TxOut[0].Capacity
	if refunded > ctx.EscrowOut.Capacity {
		return fmt.Errorf("%w: refund output exceeds escrow capacity",
			ErrOutputShapeViolation)
	}
	if ctx.EscrowOut.Capacity-refunded > MaxRefundFee {
		return fmt.Errorf("%w: fee %d above ceiling %d",
			ErrExcessiveFee, ctx.EscrowOut.Capacity-refunded,
			MaxRefundFee)
	}
	return nil
}

// verifySignatures checks the payer signature and the payee signature or
// threshold set against the transaction digest. Both sides must authorize
// on either path.
func verifySignatures(params *input.ChannelParams, witness *input.Witness,
	digest wire.Hash) error {

	err := input.VerifyDigest(witness.PayerSig, digest, params.PayerKeyHash)
	if err != nil {
		return fmt.Errorf("%w: payer: %v", ErrAuthorizationFailed, err)
	}

	if params.Scheme.Multisig() {
		err := witness.Desc.VerifySigs(digest, witness.PayeeSigs)
		if err != nil {
			return fmt.Errorf("%w: payee: %v",
				ErrAuthorizationFailed, err)
		}
		return nil
	}

	if len(witness.PayeeSigs) != 1 {
		return fmt.Errorf("%w: payee: expected a single signature",
			ErrAuthorizationFailed)
	}
	err = input.VerifyDigest(
		witness.PayeeSigs[0], digest, params.PayeeAuthHash,
	)
	if err != nil {
		return fmt.Errorf("%w: payee: %v", ErrAuthorizationFailed, err)
	}
	return nil
}

func isZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
