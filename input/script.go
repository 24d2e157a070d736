package input

import (
	"encoding/hex"

	"github.com/shaojunda/spillman-channel/wire"
)

// System script code hashes for the target ledger. Single-sig and legacy
// multisig locks are resolved by type hash so deployed code can be upgraded;
// the v2 multisig lock is pinned by data hash under the v1 VM.
var (
	// SingleSigCodeHash is the code hash of the secp256k1/blake160
	// signature lock.
	SingleSigCodeHash = mustHash(
		"9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8",
	)

	// MultisigLegacyCodeHash is the code hash of the legacy threshold
	// multisig lock.
	MultisigLegacyCodeHash = mustHash(
		"5c5069eb0857efc65e1bca0c07df34c31663b3622fd3876c876320fc9634e2a8",
	)

	// MultisigV2CodeHash is the code hash of the v2 threshold multisig
	// lock.
	MultisigV2CodeHash = mustHash(
		"36c971b8d41fbd94aabca77dc75e826729ac98447b46f91e00796155dddb0d29",
	)
)

func mustHash(s string) wire.Hash {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != wire.HashSize {
		panic("malformed code hash literal: " + s)
	}
	var h wire.Hash
	copy(h[:], raw)
	return h
}

// SingleSigLock returns the plain signature lock paying to the given key
// hash.
func SingleSigLock(keyHash [20]byte) wire.Script {
	return wire.Script{
		CodeHash: SingleSigCodeHash,
		HashType: wire.HashTypeType,
		Args:     append([]byte(nil), keyHash[:]...),
	}
}

// PayerLock returns the lock script the payer's settlement change and
// refund must pay to. The payer side is always single-sig.
func PayerLock(params *ChannelParams) wire.Script {
	return SingleSigLock(params.PayerKeyHash)
}

// PayeeLock derives the lock script the payee's settlement output must pay
// to, based on the channel's declared authorization scheme. For multisig
// schemes the script args are the blake160 hash of the multisig descriptor,
// i.e. exactly the payee authorization hash recorded in the parameters.
func PayeeLock(params *ChannelParams) wire.Script {
	switch params.Scheme {
	case SchemeMultisigLegacy:
		return wire.Script{
			CodeHash: MultisigLegacyCodeHash,
			HashType: wire.HashTypeType,
			Args:     append([]byte(nil), params.PayeeAuthHash[:]...),
		}

	case SchemeMultisigV2:
		return wire.Script{
			CodeHash: MultisigV2CodeHash,
			HashType: wire.HashTypeData1,
			Args:     append([]byte(nil), params.PayeeAuthHash[:]...),
		}

	default:
		return SingleSigLock(params.PayeeAuthHash)
	}
}

// EscrowLock returns the channel's own lock script: the spillman lock code
// parameterized by the encoded channel parameter block.
func EscrowLock(codeHash wire.Hash, params *ChannelParams) wire.Script {
	return wire.Script{
		CodeHash: codeHash,
		HashType: wire.HashTypeData1,
		Args:     params.Encode(),
	}
}
