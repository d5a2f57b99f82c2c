package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/niumanuwu/BitcoinTaproot/btc"
	"github.com/niumanuwu/BitcoinTaproot/keyring"
	"github.com/niumanuwu/BitcoinTaproot/spend"
	"github.com/niumanuwu/BitcoinTaproot/vaultdb"
	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

const (
	testVaultName  = "savings"
	testLockHeight = 100
	testChainTip   = 200
	testFundTxid   = "0000000000000000000000000000000000000000000000000" +
		"000000000000001"
	testFundValue = 100_000
)

// harness wires the global command state to a regtest network, a temp vault
// database, a deterministic root key and a fake esplora server serving one
// funded vault UTXO.
type harness struct {
	t         *testing.T
	logBuffer *bytes.Buffer
	ring      *keyring.KeyRing
	vault     *vaultscript.Vault
	dbPath    string
	apiURL    string
	sweepAddr string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		logBuffer: &bytes.Buffer{},
		dbPath:    filepath.Join(t.TempDir(), "tapvault.db"),
	}

	chainParams = &chaincfg.RegressionNetParams

	backend := btclog.NewBackend(h.logBuffer)
	log = backend.Logger("TAPV")
	log.SetLevel(btclog.LevelDebug)
	spend.UseLogger(log)
	vaultdb.UseLogger(log)
	btc.UseLogger(log)

	rootKey, err := hdkeychain.NewMaster(make([]byte, 16), chainParams)
	require.NoError(t, err)
	h.ring = &keyring.KeyRing{
		ExtendedKey: rootKey,
		ChainParams: chainParams,
	}

	h.vault, err = h.ring.DeriveVault(0, testLockHeight)
	require.NoError(t, err)

	// Any regtest P2WPKH address works as a sweep target.
	keys, err := h.ring.DeriveVaultKeys(0)
	require.NoError(t, err)
	sweepAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(keys.Recovery.PubKey().SerializeCompressed()),
		chainParams,
	)
	require.NoError(t, err)
	h.sweepAddr = sweepAddr.EncodeAddress()

	h.apiURL = h.startExplorer()

	return h
}

// startExplorer serves the funding transaction paying to the vault output,
// the chain tip height and the publish endpoint.
func (h *harness) startExplorer() string {
	h.t.Helper()

	pkScript, err := h.vault.PkScript(chainParams)
	require.NoError(h.t, err)

	mux := http.NewServeMux()
	mux.HandleFunc(
		"/tx/"+testFundTxid,
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `{
				"txid": "%s",
				"vout": [{
					"scriptpubkey": "%s",
					"scriptpubkey_type": "v1_p2tr",
					"value": %d
				}],
				"status": {"confirmed": true}
			}`, testFundTxid, hex.EncodeToString(pkScript),
				testFundValue)
		},
	)
	mux.HandleFunc(
		"/tx/"+testFundTxid+"/outspend/",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"spent": false}`)
		},
	)
	mux.HandleFunc(
		"/blocks/tip/height",
		func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "%d", testChainTip)
		},
	)
	mux.HandleFunc("/tx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "accepted")
	})

	server := httptest.NewServer(mux)
	h.t.Cleanup(server.Close)

	return server.URL
}

// run executes one subcommand with the given flags. A fresh command instance
// is built per run so no flag state leaks between tests.
func (h *harness) run(cmd string, extraArgs ...string) error {
	h.t.Helper()

	constructors := map[string]func() *cobra.Command{
		"createvault":    newCreateVaultCommand,
		"showvault":      newShowVaultCommand,
		"signsweep":      newSignSweepCommand,
		"sweepthreshold": newSweepThresholdCommand,
		"sweeptimelock":  newSweepTimeLockCommand,
		"sweepkeypath":   newSweepKeyPathCommand,
	}
	constructor, ok := constructors[cmd]
	require.True(h.t, ok)
	command := constructor()

	args := append([]string{
		"--vaultdb", h.dbPath,
	}, extraArgs...)
	require.NoError(h.t, command.ParseFlags(args))

	return command.RunE(command, nil)
}

func (h *harness) createVault() {
	h.t.Helper()

	store, err := vaultdb.Open(h.dbPath)
	require.NoError(h.t, err)
	require.NoError(
		h.t, store.Put(vaultdb.NewRecord(testVaultName, h.vault)),
	)
	require.NoError(h.t, store.Close())
}

func (h *harness) sweepArgs() []string {
	return []string{
		"--name", testVaultName,
		"--outpoint", testFundTxid + ":0",
		"--sweepaddr", h.sweepAddr,
		"--feerate", "2",
		"--apiurl", h.apiURL,
		"--publish",
	}
}

func TestCreateAndShowVault(t *testing.T) {
	h := newHarness(t)

	err := h.run("createvault",
		"--name", testVaultName,
		"--lockheight", fmt.Sprintf("%d", testLockHeight),
		"--rootkey", h.ring.ExtendedKey.String(),
	)
	require.NoError(t, err)

	addr, err := h.vault.Address(chainParams)
	require.NoError(t, err)
	require.Contains(t, h.logBuffer.String(), addr.String())

	// The stored record must rebuild the identical vault.
	store, err := vaultdb.Open(h.dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	record, err := store.Get(testVaultName)
	require.NoError(t, err)
	restored, err := record.Vault()
	require.NoError(t, err)
	require.Equal(t, h.vault.MerkleRoot, restored.MerkleRoot)
}

func TestCreateVaultExplicitKeys(t *testing.T) {
	h := newHarness(t)

	record := vaultdb.NewRecord(testVaultName, h.vault)
	err := h.run("createvault",
		"--name", "explicit",
		"--lockheight", fmt.Sprintf("%d", testLockHeight),
		"--internalkey", record.InternalKey,
		"--signerkeys", strings.Join(record.SignerKeys, ","),
		"--recoverykey", record.RecoveryKey,
	)
	require.NoError(t, err)

	store, err := vaultdb.Open(h.dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	stored, err := store.Get("explicit")
	require.NoError(t, err)
	restored, err := stored.Vault()
	require.NoError(t, err)
	require.Equal(t, h.vault.MerkleRoot, restored.MerkleRoot)
}

func TestSweepKeyPath(t *testing.T) {
	h := newHarness(t)
	h.createVault()

	err := h.run("sweepkeypath", append(h.sweepArgs(),
		"--rootkey", h.ring.ExtendedKey.String(),
	)...)
	require.NoError(t, err)

	require.Contains(t, h.logBuffer.String(), "Published TX")
}

func TestSweepTimeLock(t *testing.T) {
	h := newHarness(t)
	h.createVault()

	err := h.run("sweeptimelock", append(h.sweepArgs(),
		"--rootkey", h.ring.ExtendedKey.String(),
	)...)
	require.NoError(t, err)

	require.Contains(t, h.logBuffer.String(), "Published TX")
}

func TestSweepThreshold(t *testing.T) {
	h := newHarness(t)
	h.createVault()

	// Produce the two participant signatures the same way the signsweep
	// command does.
	keys, err := h.ring.DeriveVaultKeys(0)
	require.NoError(t, err)

	flags := &sweepFlags{
		VaultName: testVaultName,
		Outpoint:  testFundTxid + ":0",
		SweepAddr: h.sweepAddr,
		FeeRate:   2,
		APIURL:    h.apiURL,
	}
	ctx, err := flags.newSweepContext(
		h.vault, spend.KindScriptPathThreshold,
	)
	require.NoError(t, err)

	sig0, err := ctx.planner.SignThreshold(ctx.tx, 0, keys.Signers[0])
	require.NoError(t, err)
	sig2, err := ctx.planner.SignThreshold(ctx.tx, 0, keys.Signers[2])
	require.NoError(t, err)

	err = h.run("sweepthreshold", append(h.sweepArgs(),
		"--sigs", fmt.Sprintf("%x,,%x", sig0, sig2),
	)...)
	require.NoError(t, err)

	require.Contains(t, h.logBuffer.String(), "Published TX")
}

func TestParseSigSlots(t *testing.T) {
	sig := bytes.Repeat([]byte{0xab}, 64)
	sigHex := hex.EncodeToString(sig)

	sigs, err := parseSigSlots(sigHex + ",," + sigHex)
	require.NoError(t, err)
	require.Len(t, sigs, vaultscript.NumSigners)
	require.Equal(t, sig, sigs[0])
	require.Nil(t, sigs[1])
	require.Equal(t, sig, sigs[2])

	_, err = parseSigSlots(sigHex)
	require.ErrorContains(t, err, "exactly 3 comma separated slots")

	_, err = parseSigSlots("zz,,")
	require.ErrorContains(t, err, "error decoding signature in slot 0")
}

func TestEstimateFee(t *testing.T) {
	h := newHarness(t)

	keyPathFee, err := estimateFee(
		h.vault, spend.KindKeyPath, h.sweepAddr, 10,
	)
	require.NoError(t, err)
	require.Positive(t, keyPathFee)

	thresholdFee, err := estimateFee(
		h.vault, spend.KindScriptPathThreshold, h.sweepAddr, 10,
	)
	require.NoError(t, err)

	timelockFee, err := estimateFee(
		h.vault, spend.KindScriptPathTimelock, h.sweepAddr, 10,
	)
	require.NoError(t, err)

	// Revealing a script and its inclusion proof always costs more than
	// the key path, and two signatures cost more than one.
	require.Greater(t, thresholdFee, timelockFee)
	require.Greater(t, timelockFee, keyPathFee)
}
