package spend

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"

	"github.com/niumanuwu/BitcoinTaproot/taproot"
	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

// Kind is the spend variant a plan was requested for.
type Kind uint8

const (
	// KindScriptPathThreshold spends through the 2-of-3 threshold leaf.
	KindScriptPathThreshold Kind = iota

	// KindScriptPathTimelock spends through the CLTV recovery leaf.
	KindScriptPathTimelock

	// KindKeyPath spends with the tweaked internal key, revealing no
	// script at all.
	KindKeyPath
)

// String returns a human readable name of the spend kind.
func (k Kind) String() string {
	switch k {
	case KindScriptPathThreshold:
		return "script path (threshold)"

	case KindScriptPathTimelock:
		return "script path (timelock)"

	case KindKeyPath:
		return "key path"

	default:
		return fmt.Sprintf("unknown spend kind (%d)", k)
	}
}

// State is the lifecycle stage of a plan. Plans move Requested -> Validated
// -> WitnessBuilt, or to Rejected at any validation step. No state is ever
// re-entered; each request is planned exactly once.
type State uint8

const (
	// StateRequested is the initial state of every plan.
	StateRequested State = iota

	// StateValidated means all preconditions of the spend variant held.
	StateValidated

	// StateWitnessBuilt means the witness stack was assembled and the
	// plan is complete.
	StateWitnessBuilt

	// StateRejected is the terminal state of a failed plan. A rejected
	// plan never carries a partial witness.
	StateRejected
)

// String returns a human readable name of the plan state.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"

	case StateValidated:
		return "validated"

	case StateWitnessBuilt:
		return "witness built"

	case StateRejected:
		return "rejected"

	default:
		return fmt.Sprintf("unknown state (%d)", s)
	}
}

// Plan is the outcome of a single spend request: the witness stack to attach
// to the spending input, or the reason the request was rejected.
type Plan struct {
	// Kind is the requested spend variant.
	Kind Kind

	// State is the lifecycle stage the plan ended in.
	State State

	// Witness is the assembled witness stack, set only in state
	// WitnessBuilt.
	Witness wire.TxWitness

	// Reject is the failure that moved the plan to StateRejected.
	Reject error
}

// reject moves the plan to its terminal failure state and returns the typed
// error for the caller.
func (p *Plan) reject(err *Error) (*Plan, error) {
	p.State = StateRejected
	p.Reject = err

	log.Debugf("Rejected %v spend plan: %v", p.Kind, err)

	return p, err
}

// Planner validates spend requests against a single vault and assembles the
// witness stack of the matching spend variant. The vault is only ever read,
// so one planner may serve concurrent plans; each plan itself is a one-shot
// value.
type Planner struct {
	vault     *vaultscript.Vault
	sigHasher SigHasher
	signer    Signer
}

// NewPlanner creates a planner for the given vault. The sig hasher
// determines which spent outputs the signature digests commit to.
func NewPlanner(vault *vaultscript.Vault, sigHasher SigHasher,
	signer Signer) *Planner {

	return &Planner{
		vault:     vault,
		sigHasher: sigHasher,
		signer:    signer,
	}
}

// ThresholdSigHash returns the digest a participant of the threshold leaf
// must sign for the given spending transaction. All participants must sign
// the identical digest, so the transaction must be fully assembled (inputs,
// outputs, locktime) before signatures are collected.
func (p *Planner) ThresholdSigHash(tx *wire.MsgTx,
	inputIndex int) ([]byte, error) {

	if err := checkInputIndex(tx, inputIndex); err != nil {
		return nil, inputErr(err)
	}

	digest, err := p.sigHasher.ScriptPathSigHash(
		tx, inputIndex, p.vault.ThresholdLeaf(),
	)
	if err != nil {
		return nil, cryptoErr(err)
	}

	return digest, nil
}

// SignThreshold produces one participant's signature for the threshold leaf.
// The private key must belong to one of the vault's signer keys.
func (p *Planner) SignThreshold(tx *wire.MsgTx, inputIndex int,
	privKey *btcec.PrivateKey) ([]byte, error) {

	if privKey == nil {
		return nil, inputErr(ErrMissingKey)
	}
	if !p.isSignerKey(privKey.PubKey()) {
		return nil, inputErr(ErrWrongKey)
	}

	digest, err := p.ThresholdSigHash(tx, inputIndex)
	if err != nil {
		return nil, err
	}

	sig, err := p.signer.SignSchnorr(privKey, digest)
	if err != nil {
		return nil, cryptoErr(err)
	}

	return sig, nil
}

// PlanThreshold plans a spend through the threshold leaf. The signatures
// must be supplied in key index order, one slot per signer key, with absent
// participants contributing an empty slot. Exactly the number of signatures
// the script demands must be present, and every present signature must
// verify for the key at its slot: a shifted or swapped ordering would only
// fail later inside script validation, so it is rejected here.
//
// The witness stack is [sig_0, sig_1, sig_2, leaf script, control block]
// with absent slots as empty pushes.
func (p *Planner) PlanThreshold(tx *wire.MsgTx, inputIndex int,
	sigs [][]byte) (*Plan, error) {

	plan := &Plan{Kind: KindScriptPathThreshold, State: StateRequested}

	if err := checkInputIndex(tx, inputIndex); err != nil {
		return plan.reject(inputErr(err))
	}
	if len(sigs) != vaultscript.NumSigners {
		return plan.reject(inputErr(fmt.Errorf("need %d signature "+
			"slots, got %d", vaultscript.NumSigners, len(sigs))))
	}

	numSigs := 0
	for idx, sig := range sigs {
		if len(sig) == 0 {
			continue
		}
		if len(sig) != schnorr.SignatureSize {
			return plan.reject(inputErr(fmt.Errorf("%w: slot %d "+
				"holds %d bytes", ErrSigLength, idx,
				len(sig))))
		}

		numSigs++
	}
	if numSigs != vaultscript.SigsRequired {
		return plan.reject(preconditionErr(fmt.Errorf("%w: need %d, "+
			"got %d", ErrWrongSigCount, vaultscript.SigsRequired,
			numSigs)))
	}

	// Every present signature has to verify for the key at its slot,
	// over the digest all participants committed to.
	digest, err := p.sigHasher.ScriptPathSigHash(
		tx, inputIndex, p.vault.ThresholdLeaf(),
	)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	for idx, rawSig := range sigs {
		if len(rawSig) == 0 {
			continue
		}

		if err := verifySchnorrSig(
			rawSig, digest, p.vault.SignerKeys[idx],
		); err != nil {
			return plan.reject(preconditionErr(
				fmt.Errorf("%w: slot %d: %v",
					ErrSignatureMismatch, idx, err),
			))
		}
	}

	plan.State = StateValidated

	controlBlock, err := p.vault.ControlBlock(
		vaultscript.ThresholdLeafIndex,
	)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	witness := make(wire.TxWitness, 0, vaultscript.NumSigners+2)
	for _, sig := range sigs {
		if len(sig) == 0 {
			// Absent participants contribute an empty element so
			// the script's count check lines up with key order.
			witness = append(witness, []byte{})
			continue
		}
		witness = append(witness, sig)
	}
	witness = append(witness, p.vault.ThresholdLeaf().Script)
	witness = append(witness, controlBlock.Bytes())

	plan.Witness = witness
	plan.State = StateWitnessBuilt

	log.Debugf("Built %v witness with %d signatures", plan.Kind, numSigs)

	return plan, nil
}

// PlanTimelock plans a spend through the CLTV recovery leaf. The chain must
// have reached the vault's lock height; the transaction is made locktime
// effective by raising its locktime to the lock height and lowering the
// spending input's sequence below the final sentinel. Both happen before the
// digest is computed, since the signature commits to them.
//
// The witness stack is [sig, leaf script, control block].
func (p *Planner) PlanTimelock(tx *wire.MsgTx, inputIndex int,
	chainHeight uint32, recoveryKey *btcec.PrivateKey) (*Plan, error) {

	plan := &Plan{Kind: KindScriptPathTimelock, State: StateRequested}

	if err := checkInputIndex(tx, inputIndex); err != nil {
		return plan.reject(inputErr(err))
	}
	if recoveryKey == nil {
		return plan.reject(inputErr(ErrMissingKey))
	}
	if !bytes.Equal(
		schnorr.SerializePubKey(recoveryKey.PubKey()),
		schnorr.SerializePubKey(p.vault.RecoveryKey),
	) {
		return plan.reject(inputErr(ErrWrongKey))
	}

	if chainHeight < p.vault.LockHeight {
		return plan.reject(preconditionErr(fmt.Errorf("%w: chain "+
			"height %d, lock height %d", ErrLockHeightNotReached,
			chainHeight, p.vault.LockHeight)))
	}

	plan.State = StateValidated

	if tx.LockTime < p.vault.LockHeight {
		tx.LockTime = p.vault.LockHeight
	}
	if tx.TxIn[inputIndex].Sequence >= wire.MaxTxInSequenceNum {
		tx.TxIn[inputIndex].Sequence = wire.MaxTxInSequenceNum - 1
	}

	digest, err := p.sigHasher.ScriptPathSigHash(
		tx, inputIndex, p.vault.TimelockLeaf(),
	)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	sig, err := p.signer.SignSchnorr(recoveryKey, digest)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	controlBlock, err := p.vault.ControlBlock(
		vaultscript.TimelockLeafIndex,
	)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	plan.Witness = wire.TxWitness{
		sig,
		p.vault.TimelockLeaf().Script,
		controlBlock.Bytes(),
	}
	plan.State = StateWitnessBuilt

	log.Debugf("Built %v witness, locktime %d", plan.Kind, tx.LockTime)

	return plan, nil
}

// PlanKeyPath plans a key path spend. The internal private key is tweaked
// with the vault's merkle root; the tweaked key material only lives for the
// duration of the signing call and is wiped on every exit path.
//
// The witness stack is just [sig].
func (p *Planner) PlanKeyPath(tx *wire.MsgTx, inputIndex int,
	internalKey *btcec.PrivateKey) (*Plan, error) {

	plan := &Plan{Kind: KindKeyPath, State: StateRequested}

	if err := checkInputIndex(tx, inputIndex); err != nil {
		return plan.reject(inputErr(err))
	}
	if internalKey == nil {
		return plan.reject(inputErr(ErrMissingKey))
	}
	if !bytes.Equal(
		schnorr.SerializePubKey(internalKey.PubKey()),
		p.vault.InternalKey.XOnlyBytes(),
	) {
		return plan.reject(inputErr(ErrWrongKey))
	}

	plan.State = StateValidated

	material, err := taproot.TweakPrivateKey(internalKey, p.vault.MerkleRoot)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}
	defer material.Zero()

	digest, err := p.sigHasher.KeyPathSigHash(tx, inputIndex)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	sig, err := p.signer.SignSchnorr(material.PrivKey, digest)
	if err != nil {
		return plan.reject(cryptoErr(err))
	}

	plan.Witness = wire.TxWitness{sig}
	plan.State = StateWitnessBuilt

	log.Debugf("Built %v witness", plan.Kind)

	return plan, nil
}

// isSignerKey reports whether the given key is one of the threshold leaf
// keys, compared by x-only serialization.
func (p *Planner) isSignerKey(pubKey *btcec.PublicKey) bool {
	xOnly := schnorr.SerializePubKey(pubKey)
	for _, signerKey := range p.vault.SignerKeys {
		if bytes.Equal(xOnly, schnorr.SerializePubKey(signerKey)) {
			return true
		}
	}

	return false
}

// checkInputIndex validates that the index points at an existing input of
// the spending transaction.
func checkInputIndex(tx *wire.MsgTx, inputIndex int) error {
	if tx == nil {
		return fmt.Errorf("spending transaction is required")
	}
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return fmt.Errorf("input index %d out of range for "+
			"transaction with %d inputs", inputIndex,
			len(tx.TxIn))
	}

	return nil
}

// verifySchnorrSig checks a raw 64 byte signature over the digest against
// the x-only form of the given key.
func verifySchnorrSig(rawSig, digest []byte, key *btcec.PublicKey) error {
	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return err
	}

	xOnlyKey, err := schnorr.ParsePubKey(schnorr.SerializePubKey(key))
	if err != nil {
		return err
	}

	if !sig.Verify(digest, xOnlyKey) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}
