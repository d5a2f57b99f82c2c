package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/keyring"
	"github.com/niumanuwu/BitcoinTaproot/spend"
)

type sweepKeyPathCommand struct {
	sweep   *sweepFlags
	rootKey *rootKey
	vaultDB *vaultDBFlag
	cmd     *cobra.Command
}

func newSweepKeyPathCommand() *cobra.Command {
	cc := &sweepKeyPathCommand{}
	cc.cmd = &cobra.Command{
		Use: "sweepkeypath",
		Short: "Sweep a vault UTXO through the key path of the " +
			"tweaked internal key",
		Long: `Sweeps a vault UTXO with the internal key, tweaked by the
vault's script commitment. This is the cheapest spend path and reveals
neither of the vault scripts on chain.`,
		Example: `tapvault sweepkeypath \
	--name savings \
	--outpoint abc...def:0 \
	--sweepaddr bc1q..... \
	--feerate 20 \
	--publish`,
		RunE: cc.Execute,
	}
	cc.sweep = newSweepFlags(cc.cmd)
	cc.rootKey = newRootKey(cc.cmd, "deriving the internal key")
	cc.vaultDB = newVaultDBFlag(cc.cmd)

	return cc.cmd
}

func (c *sweepKeyPathCommand) Execute(_ *cobra.Command, _ []string) error {
	vault, err := loadVault(c.vaultDB, c.sweep.VaultName)
	if err != nil {
		return err
	}

	extendedKey, err := c.rootKey.read()
	if err != nil {
		return fmt.Errorf("error reading root key: %w", err)
	}
	ring := &keyring.KeyRing{
		ExtendedKey: extendedKey,
		ChainParams: chainParams,
	}
	keys, err := ring.DeriveVaultKeys(c.rootKey.VaultIndex)
	if err != nil {
		return fmt.Errorf("error deriving vault keys: %w", err)
	}

	ctx, err := c.sweep.newSweepContext(vault, spend.KindKeyPath)
	if err != nil {
		return err
	}

	plan, err := ctx.planner.PlanKeyPath(ctx.tx, 0, keys.Internal)
	if err != nil {
		return fmt.Errorf("error planning key path sweep: %w", err)
	}

	return ctx.finish(plan, c.sweep.Publish)
}
