package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/btc"
	"github.com/niumanuwu/BitcoinTaproot/spend"
	"github.com/niumanuwu/BitcoinTaproot/vaultdb"
)

const (
	defaultAPIURL        = "https://blockstream.info/api"
	defaultTestnetAPIURL = "https://blockstream.info/testnet/api"
	defaultRegtestAPIURL = "http://localhost:3004"

	defaultFeeSatPerVByte = 10

	// version is the current version of the tool. It is set during build.
	version = "0.2.1"

	Commit = ""
)

var (
	Testnet bool
	Regtest bool
	Signet  bool

	log         = btclog.Disabled
	chainParams = &chaincfg.MainNetParams
)

var rootCmd = &cobra.Command{
	Use:   "tapvault",
	Short: "Tapvault creates and sweeps taproot vault outputs",
	Long: `This tool creates taproot vault outputs with three spend paths:
a 2-of-3 signer threshold script, a timelocked recovery script and the
key path of the tweaked internal key. It can plan and publish the sweep
transaction for each path.`,
	Version: fmt.Sprintf("v%s, commit %s", version, Commit),
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		switch {
		case Testnet:
			chainParams = &chaincfg.TestNet3Params

		case Regtest:
			chainParams = &chaincfg.RegressionNetParams

		case Signet:
			chainParams = &chaincfg.SigNetParams

		default:
			chainParams = &chaincfg.MainNetParams
		}

		setupLogging()

		log.Infof("tapvault version v%s commit %s", version, Commit)
	},
	DisableAutoGenTag: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(
		&Testnet, "testnet", "t", false, "Indicates if testnet "+
			"parameters should be used",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&Regtest, "regtest", "r", false, "Indicates if regtest "+
			"parameters should be used",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&Signet, "signet", "s", false, "Indicates if the public "+
			"signet parameters should be used",
	)

	rootCmd.AddCommand(
		newCreateVaultCommand(),
		newShowVaultCommand(),
		newSignSweepCommand(),
		newSweepThresholdCommand(),
		newSweepTimeLockCommand(),
		newSweepKeyPathCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// apiURL returns the explorer URL matching the selected network, unless the
// user overrode it.
func apiURL(override string) string {
	if override != "" {
		return override
	}

	switch {
	case Testnet, Signet:
		return defaultTestnetAPIURL

	case Regtest:
		return defaultRegtestAPIURL

	default:
		return defaultAPIURL
	}
}

type rootKey struct {
	RootKey    string
	VaultIndex uint32
}

func newRootKey(cmd *cobra.Command, desc string) *rootKey {
	r := &rootKey{}
	cmd.Flags().StringVar(
		&r.RootKey, "rootkey", "", "BIP32 HD root key to use for "+
			desc+"; leave empty to read from the ROOT_KEY "+
			"environment variable",
	)
	cmd.Flags().Uint32Var(
		&r.VaultIndex, "vaultindex", 0, "index of the vault account "+
			"below the root key",
	)

	return r
}

func (r *rootKey) read() (*hdkeychain.ExtendedKey, error) {
	rootKeyStr := r.RootKey
	if rootKeyStr == "" {
		rootKeyStr = os.Getenv("ROOT_KEY")
	}
	if rootKeyStr == "" {
		return nil, errors.New("a root key must be provided through " +
			"--rootkey or the ROOT_KEY environment variable")
	}

	extendedKey, err := hdkeychain.NewKeyFromString(rootKeyStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing root key: %w", err)
	}

	return extendedKey, nil
}

type vaultDBFlag struct {
	Path string
}

func newVaultDBFlag(cmd *cobra.Command) *vaultDBFlag {
	f := &vaultDBFlag{}
	cmd.Flags().StringVar(
		&f.Path, "vaultdb", "tapvault.db", "path to the vault "+
			"database file",
	)

	return f
}

func (f *vaultDBFlag) open() (*vaultdb.Store, error) {
	return vaultdb.Open(f.Path)
}

func setupLogging() {
	backend := btclog.NewBackend(os.Stdout)

	log = backend.Logger("TAPV")
	log.SetLevel(btclog.LevelDebug)

	setSubLogger(backend, "SPND", spend.UseLogger)
	setSubLogger(backend, "VLTD", vaultdb.UseLogger)
	setSubLogger(backend, "BTCX", btc.UseLogger)
}

// setSubLogger creates and registers the logger of a sub system.
func setSubLogger(backend *btclog.Backend, subsystem string,
	useLogger func(btclog.Logger)) {

	logger := backend.Logger(subsystem)
	logger.SetLevel(btclog.LevelDebug)
	useLogger(logger)
}
