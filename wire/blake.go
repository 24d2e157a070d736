package wire

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the size in bytes of the ledger's canonical hash.
const HashSize = 32

// Hash is a blake2b-256 digest as used for transaction ids and script code
// hashes.
type Hash [HashSize]byte

// String returns the hash encoded as a hexadecimal string.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Blake256 returns the blake2b-256 digest of the passed data. This is the
// ledger's canonical hash function.
func Blake256(data []byte) Hash {
	return blake2b.Sum256(data)
}

// Blake160 returns the first 20 bytes of the blake2b-256 digest of the
// passed data. Public key hashes and multisig descriptor hashes on this
// ledger are blake160 values.
func Blake160(data []byte) [20]byte {
	var h [20]byte
	full := blake2b.Sum256(data)
	copy(h[:], full[:20])
	return h
}
