package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// TxVersion is the only transaction version understood by this
	// package.
	TxVersion uint32 = 0

	// OutPointSize is the serialized size of an OutPoint: a 32-byte
	// transaction hash plus a 4-byte output index.
	OutPointSize = HashSize + 4

	// maxTxElements caps every decoded element count (inputs, outputs,
	// deps, witnesses). Decoding never allocates for more elements than
	// this before the corresponding bytes have actually been read.
	maxTxElements = 16384

	// maxVarBytesLen caps any single length-prefixed byte field.
	maxVarBytesLen = 1 << 22 // 4 MiB
)

// ScriptHashType describes how a script's code hash is resolved on chain.
type ScriptHashType byte

const (
	// HashTypeData pins the script by the hash of its code blob.
	HashTypeData ScriptHashType = 0x00

	// HashTypeType pins the script by the hash of its type id, allowing
	// the code to be upgraded in place.
	HashTypeType ScriptHashType = 0x01

	// HashTypeData1 pins the script by code hash under the v1 VM.
	HashTypeData1 ScriptHashType = 0x02
)

// Script is a lock or type script attached to a transaction output. Value
// can only be unlocked by a successful execution of the referenced code with
// Args as its parameters.
type Script struct {
	CodeHash Hash
	HashType ScriptHashType
	Args     []byte
}

// Equal reports whether two scripts are byte-for-byte identical.
func (s *Script) Equal(other *Script) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.CodeHash == other.CodeHash &&
		s.HashType == other.HashType &&
		bytes.Equal(s.Args, other.Args)
}

// Copy returns a deep copy of the script.
func (s *Script) Copy() *Script {
	if s == nil {
		return nil
	}
	cp := &Script{
		CodeHash: s.CodeHash,
		HashType: s.HashType,
		Args:     make([]byte, len(s.Args)),
	}
	copy(cp.Args, s.Args)
	return cp
}

// serialize writes the canonical form of the script: code hash, hash type,
// then length-prefixed args.
func (s *Script) serialize(w io.Writer) error {
	if _, err := w.Write(s.CodeHash[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(s.HashType)}); err != nil {
		return err
	}
	return writeVarBytes(w, s.Args)
}

func (s *Script) deserialize(r io.Reader) error {
	if _, err := io.ReadFull(r, s.CodeHash[:]); err != nil {
		return err
	}
	var ht [1]byte
	if _, err := io.ReadFull(r, ht[:]); err != nil {
		return err
	}
	s.HashType = ScriptHashType(ht[0])
	args, err := readVarBytes(r)
	if err != nil {
		return err
	}
	s.Args = args
	return nil
}

// OutPoint references a particular output of a previous transaction.
type OutPoint struct {
	Hash  Hash
	Index uint32
}

// String returns the outpoint in the usual txid:index form.
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash, o.Index)
}

// TxIn consumes a previous output. Since is the input's 64-bit timing field:
// zero means no constraint, otherwise it carries the earliest
// seconds-since-epoch timestamp at which the ledger may confirm the spend.
type TxIn struct {
	PreviousOutPoint OutPoint
	Since            uint64
}

// TxOut is a transaction output holding Capacity base units guarded by the
// Lock script. Type optionally attaches a token contract whose state rides
// in the output's payload data.
type TxOut struct {
	Capacity uint64
	Lock     Script
	Type     *Script
}

// Copy returns a deep copy of the output.
func (t *TxOut) Copy() *TxOut {
	cp := &TxOut{
		Capacity: t.Capacity,
		Lock:     *t.Lock.Copy(),
		Type:     t.Type.Copy(),
	}
	return cp
}

// MsgTx is a ledger transaction. OutputsData holds one payload blob per
// output (token amounts live here), Witnesses one authorization blob per
// input. CellDeps reference the code cells a validator must load; they carry
// no asset-moving semantics.
type MsgTx struct {
	Version     uint32
	CellDeps    []OutPoint
	TxIn        []*TxIn
	TxOut       []*TxOut
	OutputsData [][]byte
	Witnesses   [][]byte
}

// NewMsgTx returns an empty transaction at the current version.
func NewMsgTx() *MsgTx {
	return &MsgTx{Version: TxVersion}
}

// AddTxIn appends an input to the transaction.
func (tx *MsgTx) AddTxIn(ti *TxIn) {
	tx.TxIn = append(tx.TxIn, ti)
}

// AddTxOut appends an output together with its payload data.
func (tx *MsgTx) AddTxOut(to *TxOut, data []byte) {
	tx.TxOut = append(tx.TxOut, to)
	tx.OutputsData = append(tx.OutputsData, data)
}

// AddCellDep appends a code cell dependency.
func (tx *MsgTx) AddCellDep(op OutPoint) {
	tx.CellDeps = append(tx.CellDeps, op)
}

// Copy returns a deep copy of the transaction.
func (tx *MsgTx) Copy() *MsgTx {
	cp := &MsgTx{
		Version:     tx.Version,
		CellDeps:    make([]OutPoint, len(tx.CellDeps)),
		TxIn:        make([]*TxIn, 0, len(tx.TxIn)),
		TxOut:       make([]*TxOut, 0, len(tx.TxOut)),
		OutputsData: make([][]byte, 0, len(tx.OutputsData)),
		Witnesses:   make([][]byte, 0, len(tx.Witnesses)),
	}
	copy(cp.CellDeps, tx.CellDeps)
	for _, ti := range tx.TxIn {
		tiCopy := *ti
		cp.TxIn = append(cp.TxIn, &tiCopy)
	}
	for _, to := range tx.TxOut {
		cp.TxOut = append(cp.TxOut, to.Copy())
	}
	for _, data := range tx.OutputsData {
		cp.OutputsData = append(cp.OutputsData, append([]byte(nil), data...))
	}
	for _, wit := range tx.Witnesses {
		cp.Witnesses = append(cp.Witnesses, append([]byte(nil), wit...))
	}
	return cp
}

// serializeRaw writes the structural fields of the transaction: version,
// cell deps (optionally normalized to the empty list), inputs, outputs and
// output payloads. Witnesses are never part of the raw form.
func (tx *MsgTx) serializeRaw(w io.Writer, includeDeps bool) error {
	if err := writeUint32(w, tx.Version); err != nil {
		return err
	}

	deps := tx.CellDeps
	if !includeDeps {
		deps = nil
	}
	if err := writeUint32(w, uint32(len(deps))); err != nil {
		return err
	}
	for _, dep := range deps {
		if _, err := w.Write(dep.Hash[:]); err != nil {
			return err
		}
		if err := writeUint32(w, dep.Index); err != nil {
			return err
		}
	}

	if err := writeUint32(w, uint32(len(tx.TxIn))); err != nil {
		return err
	}
	for _, ti := range tx.TxIn {
		if _, err := w.Write(ti.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		if err := writeUint32(w, ti.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := writeUint64(w, ti.Since); err != nil {
			return err
		}
	}

	if err := writeUint32(w, uint32(len(tx.TxOut))); err != nil {
		return err
	}
	for _, to := range tx.TxOut {
		if err := writeUint64(w, to.Capacity); err != nil {
			return err
		}
		if err := to.Lock.serialize(w); err != nil {
			return err
		}
		if to.Type == nil {
			if _, err := w.Write([]byte{0}); err != nil {
				return err
			}
		} else {
			if _, err := w.Write([]byte{1}); err != nil {
				return err
			}
			if err := to.Type.serialize(w); err != nil {
				return err
			}
		}
	}

	if err := writeUint32(w, uint32(len(tx.OutputsData))); err != nil {
		return err
	}
	for _, data := range tx.OutputsData {
		if err := writeVarBytes(w, data); err != nil {
			return err
		}
	}
	return nil
}

// Serialize writes the full transaction, witnesses included.
func (tx *MsgTx) Serialize(w io.Writer) error {
	if err := tx.serializeRaw(w, true); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(tx.Witnesses))); err != nil {
		return err
	}
	for _, wit := range tx.Witnesses {
		if err := writeVarBytes(w, wit); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a full transaction as written by Serialize.
func (tx *MsgTx) Deserialize(r io.Reader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	tx.Version = version

	depCount, err := readCount(r)
	if err != nil {
		return err
	}
	tx.CellDeps = nil
	for i := uint32(0); i < depCount; i++ {
		var dep OutPoint
		if _, err := io.ReadFull(r, dep.Hash[:]); err != nil {
			return err
		}
		if dep.Index, err = readUint32(r); err != nil {
			return err
		}
		tx.CellDeps = append(tx.CellDeps, dep)
	}

	inCount, err := readCount(r)
	if err != nil {
		return err
	}
	tx.TxIn = nil
	for i := uint32(0); i < inCount; i++ {
		ti := new(TxIn)
		if _, err := io.ReadFull(r, ti.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		if ti.PreviousOutPoint.Index, err = readUint32(r); err != nil {
			return err
		}
		if ti.Since, err = readUint64(r); err != nil {
			return err
		}
		tx.TxIn = append(tx.TxIn, ti)
	}

	outCount, err := readCount(r)
	if err != nil {
		return err
	}
	tx.TxOut = nil
	for i := uint32(0); i < outCount; i++ {
		to := new(TxOut)
		if to.Capacity, err = readUint64(r); err != nil {
			return err
		}
		if err := to.Lock.deserialize(r); err != nil {
			return err
		}
		var hasType [1]byte
		if _, err := io.ReadFull(r, hasType[:]); err != nil {
			return err
		}
		switch hasType[0] {
		case 0:
		case 1:
			to.Type = new(Script)
			if err := to.Type.deserialize(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid type script marker %d",
				hasType[0])
		}
		tx.TxOut = append(tx.TxOut, to)
	}

	dataCount, err := readCount(r)
	if err != nil {
		return err
	}
	tx.OutputsData = nil
	for i := uint32(0); i < dataCount; i++ {
		data, err := readVarBytes(r)
		if err != nil {
			return err
		}
		tx.OutputsData = append(tx.OutputsData, data)
	}

	witCount, err := readCount(r)
	if err != nil {
		return err
	}
	tx.Witnesses = nil
	for i := uint32(0); i < witCount; i++ {
		wit, err := readVarBytes(r)
		if err != nil {
			return err
		}
		tx.Witnesses = append(tx.Witnesses, wit)
	}
	return nil
}

// TxHash computes the transaction id: the blake2b-256 digest of the raw
// transaction, cell deps included, witnesses excluded.
func (tx *MsgTx) TxHash() Hash {
	var buf bytes.Buffer
	// Writing to a bytes.Buffer never fails.
	_ = tx.serializeRaw(&buf, true)
	return Blake256(buf.Bytes())
}

// SigHash computes the digest both parties sign: the blake2b-256 digest of
// the raw transaction with the cell-dep list normalized to empty. Witnesses
// are excluded (a signature cannot cover itself) and dep-list contents are
// excluded so that re-anchoring code cells does not invalidate previously
// collected counterparty signatures.
func (tx *MsgTx) SigHash() Hash {
	var buf bytes.Buffer
	_ = tx.serializeRaw(&buf, false)
	return Blake256(buf.Bytes())
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeVarBytes(w io.Writer, data []byte) error {
	if err := writeUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readCount(r io.Reader) (uint32, error) {
	count, err := readUint32(r)
	if err != nil {
		return 0, err
	}
	if count > maxTxElements {
		return 0, fmt.Errorf("element count %d exceeds max %d", count,
			maxTxElements)
	}
	return count, nil
}

func readVarBytes(r io.Reader) ([]byte, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if length > maxVarBytesLen {
		return nil, fmt.Errorf("byte field of %d bytes exceeds max %d",
			length, maxVarBytesLen)
	}
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
