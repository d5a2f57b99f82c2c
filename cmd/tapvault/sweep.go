package main

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/input"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/btc"
	"github.com/niumanuwu/BitcoinTaproot/spend"
	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

// sweepFlags are the flags every sweep variant shares.
type sweepFlags struct {
	VaultName string
	Outpoint  string
	SweepAddr string
	FeeRate   uint32
	APIURL    string
	Publish   bool
	PSBT      bool
}

func newSweepFlags(cmd *cobra.Command) *sweepFlags {
	f := &sweepFlags{}
	cmd.Flags().StringVar(
		&f.VaultName, "name", "", "name of the vault to sweep",
	)
	cmd.Flags().StringVar(
		&f.Outpoint, "outpoint", "", "vault UTXO to sweep, formatted "+
			"as <txid>:<vout>",
	)
	cmd.Flags().StringVar(
		&f.SweepAddr, "sweepaddr", "", "address to sweep the funds to",
	)
	cmd.Flags().Uint32Var(
		&f.FeeRate, "feerate", defaultFeeSatPerVByte, "fee rate to "+
			"use for the sweep transaction in sat/vByte",
	)
	cmd.Flags().StringVar(
		&f.APIURL, "apiurl", "", "API URL to use (must be esplora "+
			"compatible); defaults to the network's public explorer",
	)
	cmd.Flags().BoolVar(
		&f.Publish, "publish", false, "publish sweep TX to the chain "+
			"API instead of just printing the TX",
	)
	cmd.Flags().BoolVar(
		&f.PSBT, "psbt", false, "also print the unsigned sweep as a "+
			"base64 PSBT for inspection or out of band signing",
	)

	return f
}

// sweepContext is the fully assembled but unsigned sweep of one vault UTXO.
// Every participant of a threshold sweep builds the identical context from
// the same flags, so all signatures commit to the same digest.
type sweepContext struct {
	vault   *vaultscript.Vault
	tx      *wire.MsgTx
	prevOut *wire.TxOut
	planner *spend.Planner
	api     *btc.ExplorerAPI
}

// newSweepContext looks up the vault UTXO, estimates the fee for the given
// spend kind and assembles the unsigned one input, one output sweep
// transaction.
func (f *sweepFlags) newSweepContext(vault *vaultscript.Vault,
	kind spend.Kind) (*sweepContext, error) {

	op, err := btc.ParseOutpoint(f.Outpoint)
	if err != nil {
		return nil, fmt.Errorf("error parsing outpoint: %w", err)
	}

	api := &btc.ExplorerAPI{BaseURL: apiURL(f.APIURL)}
	vout, err := api.Unspent(*op)
	if err != nil {
		return nil, fmt.Errorf("error fetching vault UTXO: %w", err)
	}

	vaultPkScript, err := vault.PkScript(chainParams)
	if err != nil {
		return nil, err
	}
	if hex.EncodeToString(vaultPkScript) != vout.ScriptPubkey {
		return nil, fmt.Errorf("outpoint %v does not pay to vault "+
			"output script %x", op, vaultPkScript)
	}

	sweepScript, err := parseSweepAddr(f.SweepAddr)
	if err != nil {
		return nil, err
	}

	fee, err := estimateFee(vault, kind, f.SweepAddr, f.FeeRate)
	if err != nil {
		return nil, err
	}

	log.Infof("Fee %d sats of %d sats total input amount", fee,
		vout.Value)

	sweepTx := wire.NewMsgTx(2)
	sweepTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *op,
		Sequence:         wire.MaxTxInSequenceNum,
	})

	txOut := &wire.TxOut{
		Value:    int64(vout.Value) - int64(fee),
		PkScript: sweepScript,
	}
	if txrules.IsDustOutput(txOut, txrules.DefaultRelayFeePerKb) {
		return nil, fmt.Errorf("sweep output of %d sats after fees "+
			"is dust", txOut.Value)
	}
	sweepTx.AddTxOut(txOut)

	prevOut := &wire.TxOut{
		Value:    int64(vout.Value),
		PkScript: vaultPkScript,
	}
	hasher := spend.NewTxSigHasher(txscript.NewCannedPrevOutputFetcher(
		prevOut.PkScript, prevOut.Value,
	))

	ctx := &sweepContext{
		vault:   vault,
		tx:      sweepTx,
		prevOut: prevOut,
		planner: spend.NewPlanner(
			vault, hasher, &spend.SchnorrSigner{},
		),
		api: api,
	}

	if f.PSBT {
		packet, err := ctx.unsignedPacket()
		if err != nil {
			return nil, err
		}
		log.Infof("Unsigned sweep PSBT: %s", packet)
	}

	return ctx, nil
}

// finish attaches the planned witness to the sweep input, then prints and
// optionally publishes the final transaction.
func (c *sweepContext) finish(plan *spend.Plan, publish bool) error {
	c.tx.TxIn[0].Witness = plan.Witness

	var buf bytes.Buffer
	if err := c.tx.Serialize(&buf); err != nil {
		return err
	}

	if publish {
		response, err := c.api.PublishTx(
			hex.EncodeToString(buf.Bytes()),
		)
		if err != nil {
			return err
		}
		log.Infof("Published TX %s, response: %s",
			c.tx.TxHash().String(), response)
	}

	log.Infof("Transaction: %x", buf.Bytes())
	return nil
}

// unsignedPacket encodes the unsigned sweep as a base64 PSBT carrying the
// witness UTXO, for coordinating the threshold signing out of band.
func (c *sweepContext) unsignedPacket() (string, error) {
	packet, err := psbt.NewFromUnsignedTx(c.tx.Copy())
	if err != nil {
		return "", err
	}

	packet.Inputs[0].WitnessUtxo = c.prevOut
	packet.Inputs[0].SighashType = txscript.SigHashDefault

	return packet.B64Encode()
}

// parseSweepAddr decodes the sweep target address and returns its output
// script.
func parseSweepAddr(sweepAddr string) ([]byte, error) {
	if sweepAddr == "" {
		return nil, fmt.Errorf("a sweep address is required")
	}

	addr, err := btcutil.DecodeAddress(sweepAddr, chainParams)
	if err != nil {
		return nil, fmt.Errorf("error parsing sweep addr: %w", err)
	}
	if !addr.IsForNet(chainParams) {
		return nil, fmt.Errorf("address %s is not for network %s",
			sweepAddr, chainParams.Name)
	}

	return txscript.PayToAddrScript(addr)
}

// estimateFee computes the absolute fee of the one input, one output sweep
// for the given spend kind at the given rate.
func estimateFee(vault *vaultscript.Vault, kind spend.Kind,
	sweepAddr string, feeRate uint32) (btcutil.Amount, error) {

	var estimator input.TxWeightEstimator

	switch kind {
	case spend.KindKeyPath:
		estimator.AddTaprootKeySpendInput(txscript.SigHashDefault)

	case spend.KindScriptPathThreshold:
		size, err := thresholdWitnessSize(vault)
		if err != nil {
			return 0, err
		}
		estimator.AddWitnessInput(lntypes.WeightUnit(size))

	case spend.KindScriptPathTimelock:
		size, err := timelockWitnessSize(vault)
		if err != nil {
			return 0, err
		}
		estimator.AddWitnessInput(lntypes.WeightUnit(size))

	default:
		return 0, fmt.Errorf("unknown spend kind %v", kind)
	}

	addr, err := btcutil.DecodeAddress(sweepAddr, chainParams)
	if err != nil {
		return 0, fmt.Errorf("error parsing sweep addr: %w", err)
	}
	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash:
		estimator.AddP2WKHOutput()

	case *btcutil.AddressWitnessScriptHash:
		estimator.AddP2WSHOutput()

	case *btcutil.AddressTaproot:
		estimator.AddP2TROutput()

	default:
		return 0, fmt.Errorf("unsupported sweep address type %T, "+
			"must be P2WPKH, P2WSH or P2TR", addr)
	}

	feeRateKWeight := chainfee.SatPerKVByte(1000 * feeRate).FeePerKWeight()
	return feeRateKWeight.FeeForWeight(estimator.Weight()), nil
}

// thresholdWitnessSize returns the serialized size of a fully signed
// threshold witness. The size does not depend on which two of the three
// slots carry a signature.
func thresholdWitnessSize(vault *vaultscript.Vault) (int, error) {
	controlBlock, err := vault.ControlBlock(
		vaultscript.ThresholdLeafIndex,
	)
	if err != nil {
		return 0, err
	}

	dummySig := make([]byte, 64)
	witness := wire.TxWitness{
		dummySig, dummySig, {},
		vault.ThresholdLeaf().Script,
		controlBlock.Bytes(),
	}

	return witness.SerializeSize(), nil
}

// timelockWitnessSize returns the serialized size of a signed recovery leaf
// witness.
func timelockWitnessSize(vault *vaultscript.Vault) (int, error) {
	controlBlock, err := vault.ControlBlock(vaultscript.TimelockLeafIndex)
	if err != nil {
		return 0, err
	}

	witness := wire.TxWitness{
		make([]byte, 64),
		vault.TimelockLeaf().Script,
		controlBlock.Bytes(),
	}

	return witness.SerializeSize(), nil
}

// loadVault opens the vault database and reconstructs the named vault.
func loadVault(dbFlag *vaultDBFlag,
	name string) (*vaultscript.Vault, error) {

	if name == "" {
		return nil, fmt.Errorf("a vault name is required")
	}

	store, err := dbFlag.open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("error closing vault db: %v", err)
		}
	}()

	record, err := store.Get(name)
	if err != nil {
		return nil, err
	}

	return record.Vault()
}
