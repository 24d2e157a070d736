package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// sampleTx returns a transaction exercising every serialized field: cell
// deps, a delayed input, a token output and witnesses.
func sampleTx() *MsgTx {
	tx := NewMsgTx()
	tx.AddCellDep(OutPoint{Hash: Blake256([]byte("code cell")), Index: 3})
	tx.AddTxIn(&TxIn{
		PreviousOutPoint: OutPoint{
			Hash:  Blake256([]byte("escrow")),
			Index: 0,
		},
		Since: 1_700_000_000,
	})
	tx.AddTxOut(&TxOut{
		Capacity: 9_000,
		Lock: Script{
			CodeHash: Blake256([]byte("lock")),
			HashType: HashTypeType,
			Args:     []byte{0x01, 0x02, 0x03},
		},
	}, nil)
	tx.AddTxOut(&TxOut{
		Capacity: 1_000,
		Lock: Script{
			CodeHash: Blake256([]byte("other lock")),
			HashType: HashTypeData1,
			Args:     []byte{0xaa},
		},
		Type: &Script{
			CodeHash: Blake256([]byte("token")),
			HashType: HashTypeData,
			Args:     []byte{0xbb, 0xcc},
		},
	}, []byte{0x10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	tx.Witnesses = [][]byte{{0xde, 0xad, 0xbe, 0xef}}
	return tx
}

// TestMsgTxRoundTrip asserts that Serialize and Deserialize are inverses on
// a transaction using every field.
func TestMsgTxRoundTrip(t *testing.T) {
	t.Parallel()

	tx := sampleTx()

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	var decoded MsgTx
	require.NoError(t, decoded.Deserialize(&buf))
	require.Equal(t, tx, &decoded)

	// Nothing should be left unread.
	require.Zero(t, buf.Len())
}

// TestMsgTxCopy asserts that Copy is deep: mutating the copy leaves the
// original untouched.
func TestMsgTxCopy(t *testing.T) {
	t.Parallel()

	tx := sampleTx()
	cp := tx.Copy()
	require.Equal(t, tx, cp)

	cp.TxIn[0].Since = 0
	cp.TxOut[0].Lock.Args[0] = 0xff
	cp.OutputsData[1][0] = 0xff
	cp.Witnesses[0][0] = 0x00

	require.EqualValues(t, 1_700_000_000, tx.TxIn[0].Since)
	require.EqualValues(t, 0x01, tx.TxOut[0].Lock.Args[0])
	require.EqualValues(t, 0x10, tx.OutputsData[1][0])
	require.EqualValues(t, 0xde, tx.Witnesses[0][0])
}

// TestTxHashCoverage pins down which fields each digest covers: witnesses
// never count, cell deps count for the txid but not for the signing digest,
// and structural fields count for both.
func TestTxHashCoverage(t *testing.T) {
	t.Parallel()

	base := sampleTx()

	// Witness changes move neither digest.
	withWitness := base.Copy()
	withWitness.Witnesses = [][]byte{{0x01}, {0x02}}
	require.Equal(t, base.TxHash(), withWitness.TxHash())
	require.Equal(t, base.SigHash(), withWitness.SigHash())

	// Cell dep changes move the txid but leave collected signatures
	// intact.
	withDep := base.Copy()
	withDep.AddCellDep(OutPoint{Hash: Blake256([]byte("new dep"))})
	require.NotEqual(t, base.TxHash(), withDep.TxHash())
	require.Equal(t, base.SigHash(), withDep.SigHash())

	// Output changes move both.
	withOutput := base.Copy()
	withOutput.TxOut[0].Capacity++
	require.NotEqual(t, base.TxHash(), withOutput.TxHash())
	require.NotEqual(t, base.SigHash(), withOutput.SigHash())
}

// TestScriptEqual exercises the script comparison, nil receivers included.
func TestScriptEqual(t *testing.T) {
	t.Parallel()

	script := &Script{
		CodeHash: Blake256([]byte("lock")),
		HashType: HashTypeType,
		Args:     []byte{0x01},
	}

	require.True(t, script.Equal(script.Copy()))
	require.True(t, (*Script)(nil).Equal(nil))
	require.False(t, script.Equal(nil))

	other := script.Copy()
	other.HashType = HashTypeData1
	require.False(t, script.Equal(other))

	other = script.Copy()
	other.Args = []byte{0x02}
	require.False(t, script.Equal(other))
}

// TestDeserializeRejectsOversizedCounts asserts that hostile element counts
// are rejected up front rather than driving allocations.
func TestDeserializeRejectsOversizedCounts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, TxVersion))
	require.NoError(t, writeUint32(&buf, maxTxElements+1))

	var tx MsgTx
	require.Error(t, tx.Deserialize(&buf))
}

// TestMsgTxRoundTripRapid drives the round trip over generated
// transactions.
func TestMsgTxRoundTripRapid(t *testing.T) {
	t.Parallel()

	genHash := rapid.Custom(func(t *rapid.T) Hash {
		var h Hash
		copy(h[:], rapid.SliceOfN(rapid.Byte(), HashSize,
			HashSize).Draw(t, "hash"))
		return h
	})
	genScript := rapid.Custom(func(t *rapid.T) Script {
		return Script{
			CodeHash: genHash.Draw(t, "codeHash"),
			HashType: ScriptHashType(rapid.Uint8Range(0, 2).Draw(
				t, "hashType",
			)),
			Args: rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(
				t, "args",
			),
		}
	})

	rapid.Check(t, func(rt *rapid.T) {
		tx := NewMsgTx()

		numDeps := rapid.IntRange(0, 3).Draw(rt, "numDeps")
		for i := 0; i < numDeps; i++ {
			tx.AddCellDep(OutPoint{
				Hash:  genHash.Draw(rt, "depHash"),
				Index: rapid.Uint32().Draw(rt, "depIndex"),
			})
		}

		numIn := rapid.IntRange(1, 4).Draw(rt, "numIn")
		for i := 0; i < numIn; i++ {
			tx.AddTxIn(&TxIn{
				PreviousOutPoint: OutPoint{
					Hash:  genHash.Draw(rt, "prevHash"),
					Index: rapid.Uint32().Draw(rt, "prevIndex"),
				},
				Since: rapid.Uint64().Draw(rt, "since"),
			})
		}

		numOut := rapid.IntRange(1, 4).Draw(rt, "numOut")
		for i := 0; i < numOut; i++ {
			out := &TxOut{
				Capacity: rapid.Uint64().Draw(rt, "capacity"),
				Lock:     genScript.Draw(rt, "lock"),
			}
			if rapid.Bool().Draw(rt, "hasType") {
				typeScript := genScript.Draw(rt, "type")
				out.Type = &typeScript
			}

			var data []byte
			if rapid.Bool().Draw(rt, "hasData") {
				data = rapid.SliceOfN(rapid.Byte(), 1, 32).Draw(
					rt, "data",
				)
			}
			tx.AddTxOut(out, data)
		}

		numWit := rapid.IntRange(0, numIn).Draw(rt, "numWit")
		for i := 0; i < numWit; i++ {
			tx.Witnesses = append(tx.Witnesses, rapid.SliceOfN(
				rapid.Byte(), 1, 200,
			).Draw(rt, "witness"))
		}

		var buf bytes.Buffer
		require.NoError(rt, tx.Serialize(&buf))

		var decoded MsgTx
		require.NoError(rt, decoded.Deserialize(&buf))
		require.Equal(rt, tx, &decoded)
	})
}
