package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/spend"
	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

type sweepThresholdCommand struct {
	Sigs string

	sweep   *sweepFlags
	vaultDB *vaultDBFlag
	cmd     *cobra.Command
}

func newSweepThresholdCommand() *cobra.Command {
	cc := &sweepThresholdCommand{}
	cc.cmd = &cobra.Command{
		Use: "sweepthreshold",
		Short: "Sweep a vault UTXO through the 2-of-3 threshold " +
			"script path",
		Long: `Assembles the final sweep transaction from the signatures
the participants produced with the signsweep command. The --sigs flag takes
one comma separated slot per signer key, in key index order; the slots of
the participants that did not sign stay empty. The sweep flags must match
the flags the participants signed with exactly.

No private key is needed for this command, it only combines signatures.`,
		Example: `tapvault sweepthreshold \
	--name savings \
	--outpoint abc...def:0 \
	--sweepaddr bc1q..... \
	--feerate 20 \
	--sigs 9f2e...,,4a1b... \
	--publish`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().StringVar(
		&cc.Sigs, "sigs", "", "comma separated hex signatures, one "+
			"slot per signer key in key index order, empty slots "+
			"for absent participants",
	)
	cc.sweep = newSweepFlags(cc.cmd)
	cc.vaultDB = newVaultDBFlag(cc.cmd)

	return cc.cmd
}

func (c *sweepThresholdCommand) Execute(_ *cobra.Command, _ []string) error {
	sigs, err := parseSigSlots(c.Sigs)
	if err != nil {
		return err
	}

	vault, err := loadVault(c.vaultDB, c.sweep.VaultName)
	if err != nil {
		return err
	}

	ctx, err := c.sweep.newSweepContext(
		vault, spend.KindScriptPathThreshold,
	)
	if err != nil {
		return err
	}

	plan, err := ctx.planner.PlanThreshold(ctx.tx, 0, sigs)
	if err != nil {
		return fmt.Errorf("error planning threshold sweep: %w", err)
	}

	return ctx.finish(plan, c.sweep.Publish)
}

// parseSigSlots splits the comma separated signature list into one slot per
// signer key, decoding the non-empty ones.
func parseSigSlots(sigsStr string) ([][]byte, error) {
	parts := strings.Split(sigsStr, ",")
	if len(parts) != vaultscript.NumSigners {
		return nil, fmt.Errorf("--sigs must hold exactly %d comma "+
			"separated slots, got %d", vaultscript.NumSigners,
			len(parts))
	}

	sigs := make([][]byte, vaultscript.NumSigners)
	for idx, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		sig, err := hex.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("error decoding signature in "+
				"slot %d: %w", idx, err)
		}
		sigs[idx] = sig
	}

	return sigs, nil
}
