package main

import (
	"encoding/hex"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

type showVaultCommand struct {
	Name    string
	Verbose bool

	vaultDB *vaultDBFlag
	cmd     *cobra.Command
}

func newShowVaultCommand() *cobra.Command {
	cc := &showVaultCommand{}
	cc.cmd = &cobra.Command{
		Use: "showvault",
		Short: "Show the address, scripts and commitment data of a " +
			"stored vault",
		Example: `tapvault showvault \
	--name savings \
	--verbose`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().StringVar(
		&cc.Name, "name", "", "name of the vault to show; leave "+
			"empty to list all vaults",
	)
	cc.cmd.Flags().BoolVar(
		&cc.Verbose, "verbose", false, "dump the full stored record "+
			"and derived script data",
	)
	cc.vaultDB = newVaultDBFlag(cc.cmd)

	return cc.cmd
}

func (c *showVaultCommand) Execute(_ *cobra.Command, _ []string) error {
	store, err := c.vaultDB.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("error closing vault db: %v", err)
		}
	}()

	if c.Name == "" {
		records, err := store.List()
		if err != nil {
			return err
		}

		fmt.Printf("Found %d vaults:\n", len(records))
		for _, record := range records {
			fmt.Printf("  %s (lock height %d, created %s)\n",
				record.Name, record.LockHeight,
				record.CreatedAt.Format("2006-01-02"))
		}

		return nil
	}

	record, err := store.Get(c.Name)
	if err != nil {
		return err
	}
	vault, err := record.Vault()
	if err != nil {
		return err
	}

	addr, err := vault.Address(chainParams)
	if err != nil {
		return err
	}
	outputKey, err := vault.OutputKey()
	if err != nil {
		return err
	}

	fmt.Printf("Vault:        %s\n", record.Name)
	fmt.Printf("Address:      %v\n", addr)
	fmt.Printf("Output key:   %x\n", outputKey.SerializeCompressed())
	fmt.Printf("Merkle root:  %x\n", vault.MerkleRoot)
	fmt.Printf("Lock height:  %d\n", vault.LockHeight)
	fmt.Printf("Internal key: %s\n", record.InternalKey)
	for idx, keyHex := range record.SignerKeys {
		fmt.Printf("Signer %d:     %s\n", idx, keyHex)
	}
	fmt.Printf("Recovery key: %s\n", record.RecoveryKey)

	if c.Verbose {
		fmt.Printf("Threshold script: %s\n",
			hex.EncodeToString(vault.ThresholdLeaf().Script))
		fmt.Printf("Timelock script:  %s\n",
			hex.EncodeToString(vault.TimelockLeaf().Script))
		spew.Dump(record)
	}

	return nil
}
