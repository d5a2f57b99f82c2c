package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/keyring"
	"github.com/niumanuwu/BitcoinTaproot/spend"
	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

type signSweepCommand struct {
	SignerIndex uint32

	sweep   *sweepFlags
	rootKey *rootKey
	vaultDB *vaultDBFlag
	cmd     *cobra.Command
}

func newSignSweepCommand() *cobra.Command {
	cc := &signSweepCommand{}
	cc.cmd = &cobra.Command{
		Use: "signsweep",
		Short: "Produce one participant's signature for a threshold " +
			"sweep",
		Long: `Builds the same sweep transaction every participant builds
from the shared outpoint, sweep address and fee rate, then signs its
threshold digest with the signer key at the given index. The printed
signature goes into the matching --sigs slot of the sweepthreshold command.
All participants must use identical flags or the signatures will not commit
to the same transaction.`,
		Example: `tapvault signsweep \
	--name savings \
	--signerindex 1 \
	--outpoint abc...def:0 \
	--sweepaddr bc1q..... \
	--feerate 20`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().Uint32Var(
		&cc.SignerIndex, "signerindex", 0, "index of the signer key "+
			"to sign with",
	)
	cc.sweep = newSweepFlags(cc.cmd)
	cc.rootKey = newRootKey(cc.cmd, "deriving the signer key")
	cc.vaultDB = newVaultDBFlag(cc.cmd)

	return cc.cmd
}

func (c *signSweepCommand) Execute(_ *cobra.Command, _ []string) error {
	if c.SignerIndex >= vaultscript.NumSigners {
		return fmt.Errorf("signer index must be between 0 and %d",
			vaultscript.NumSigners-1)
	}

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
		vault, spend.KindScriptPathThreshold,
	)
	if err != nil {
		return err
	}

	sig, err := ctx.planner.SignThreshold(
		ctx.tx, 0, keys.Signers[c.SignerIndex],
	)
	if err != nil {
		return err
	}

	log.Infof("Signature for signer %d: %x", c.SignerIndex, sig)

	return nil
}
