package vaultscript

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// NumSigners is the number of keys participating in the threshold
	// leaf.
	NumSigners = 3

	// SigsRequired is the number of signatures the threshold leaf
	// demands.
	SigsRequired = 2

	// ThresholdLeafIndex is the position of the threshold leaf in the
	// committed leaf set.
	ThresholdLeafIndex = 0

	// TimelockLeafIndex is the position of the timelock leaf in the
	// committed leaf set.
	TimelockLeafIndex = 1

	// NumLeaves is the size of the committed leaf set.
	NumLeaves = 2
)

var (
	// ErrMissingKey is returned when a script builder is handed a nil
	// key.
	ErrMissingKey = errors.New("all script keys are required")

	// ErrZeroLockHeight is returned when the timelock leaf would carry no
	// lock at all.
	ErrZeroLockHeight = errors.New("lock height must be positive")
)

// ThresholdScript returns the 2-of-3 threshold leaf script:
//
//	<key_2> OP_CHECKSIG
//	<key_1> OP_CHECKSIGADD
//	<key_0> OP_CHECKSIGADD
//	OP_2 OP_NUMEQUAL
//
// The keys are pushed in reverse index order on purpose: witness items are
// consumed top of stack first, so checking key_2 first means the witness
// carries the signatures in plain key index order [sig_0, sig_1, sig_2].
// That ordering is a contract with the spend planner and is covered by
// tests, since getting it wrong only surfaces as a failed script at
// validation time, never as a construction error.
func ThresholdScript(signerKeys [NumSigners]*btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	for idx := NumSigners - 1; idx >= 0; idx-- {
		if signerKeys[idx] == nil {
			return nil, ErrMissingKey
		}

		builder.AddData(schnorr.SerializePubKey(signerKeys[idx]))
		if idx == NumSigners-1 {
			builder.AddOp(txscript.OP_CHECKSIG)
		} else {
			builder.AddOp(txscript.OP_CHECKSIGADD)
		}
	}

	builder.AddInt64(SigsRequired)
	builder.AddOp(txscript.OP_NUMEQUAL)

	return builder.Script()
}

// TimelockScript returns the recovery leaf script, spendable by the recovery
// key once the chain has reached the absolute block height lockHeight:
//
//	<lockHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	<recovery_key> OP_CHECKSIG
func TimelockScript(lockHeight uint32,
	recoveryKey *btcec.PublicKey) ([]byte, error) {

	if recoveryKey == nil {
		return nil, ErrMissingKey
	}
	if lockHeight == 0 {
		return nil, ErrZeroLockHeight
	}

	builder := txscript.NewScriptBuilder()

	builder.AddInt64(int64(lockHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(schnorr.SerializePubKey(recoveryKey))
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}
