package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/keyring"
	"github.com/niumanuwu/BitcoinTaproot/spend"
)

type sweepTimeLockCommand struct {
	sweep   *sweepFlags
	rootKey *rootKey
	vaultDB *vaultDBFlag
	cmd     *cobra.Command
}

func newSweepTimeLockCommand() *cobra.Command {
	cc := &sweepTimeLockCommand{}
	cc.cmd = &cobra.Command{
		Use: "sweeptimelock",
		Short: "Sweep a vault UTXO through the timelocked recovery " +
			"script path",
		Long: `Sweeps a vault UTXO with the recovery key alone. This only
works once the chain has reached the vault's lock height; the current height
is queried from the chain API and the sweep is refused while the lock has
not matured yet.`,
		Example: `tapvault sweeptimelock \
	--name savings \
	--outpoint abc...def:0 \
	--sweepaddr bc1q..... \
	--feerate 5 \
	--publish`,
		RunE: cc.Execute,
	}
	cc.sweep = newSweepFlags(cc.cmd)
	cc.rootKey = newRootKey(cc.cmd, "deriving the recovery key")
	cc.vaultDB = newVaultDBFlag(cc.cmd)

	return cc.cmd
}

func (c *sweepTimeLockCommand) Execute(_ *cobra.Command, _ []string) error {
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

	ctx, err := c.sweep.newSweepContext(
		vault, spend.KindScriptPathTimelock,
	)
	if err != nil {
		return err
	}

	chainHeight, err := ctx.api.BlockHeight()
	if err != nil {
		return fmt.Errorf("error fetching chain tip height: %w", err)
	}
	log.Infof("Chain tip is at height %d, vault lock height is %d",
		chainHeight, vault.LockHeight)

	plan, err := ctx.planner.PlanTimelock(
		ctx.tx, 0, chainHeight, keys.Recovery,
	)
	if err != nil {
		return fmt.Errorf("error planning timelock sweep: %w", err)
	}

	return ctx.finish(plan, c.sweep.Publish)
}
