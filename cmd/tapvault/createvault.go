package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"

	"github.com/niumanuwu/BitcoinTaproot/keyring"
	"github.com/niumanuwu/BitcoinTaproot/vaultdb"
	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

type createVaultCommand struct {
	Name       string
	LockHeight uint32

	InternalKey string
	SignerKeys  string
	RecoveryKey string

	rootKey *rootKey
	vaultDB *vaultDBFlag
	cmd     *cobra.Command
}

func newCreateVaultCommand() *cobra.Command {
	cc := &createVaultCommand{}
	cc.cmd = &cobra.Command{
		Use: "createvault",
		Short: "Derive a new vault from the root key and store it " +
			"in the vault database",
		Long: `Derives the internal key, the three threshold signer keys
and the recovery key of a new vault from the root key, commits to the
threshold and recovery scripts and prints the taproot address to fund. Only
public key material is stored in the vault database; every signing command
derives the private keys from the root key again.

Instead of deriving from a root key, all five public keys can be supplied
explicitly with --internalkey, --signerkeys and --recoverykey, for vaults
whose participants hold their own seeds.`,
		Example: `tapvault createvault \
	--name savings \
	--lockheight 840000 \
	--vaultindex 0`,
		RunE: cc.Execute,
	}
	cc.cmd.Flags().StringVar(
		&cc.Name, "name", "", "name of the new vault, unique within "+
			"the vault database",
	)
	cc.cmd.Flags().Uint32Var(
		&cc.LockHeight, "lockheight", 0, "block height at which the "+
			"recovery key alone may sweep the vault",
	)
	cc.cmd.Flags().StringVar(
		&cc.InternalKey, "internalkey", "", "hex encoded compressed "+
			"internal key; supplying it switches from root key "+
			"derivation to explicit keys",
	)
	cc.cmd.Flags().StringVar(
		&cc.SignerKeys, "signerkeys", "", "comma separated hex "+
			"encoded compressed signer keys, in key index order",
	)
	cc.cmd.Flags().StringVar(
		&cc.RecoveryKey, "recoverykey", "", "hex encoded compressed "+
			"recovery key",
	)
	cc.rootKey = newRootKey(cc.cmd, "deriving the vault keys")
	cc.vaultDB = newVaultDBFlag(cc.cmd)

	return cc.cmd
}

func (c *createVaultCommand) Execute(_ *cobra.Command, _ []string) error {
	vault, pathInfo, err := c.buildVault()
	if err != nil {
		return err
	}

	store, err := c.vaultDB.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("error closing vault db: %v", err)
		}
	}()

	if err := store.Put(vaultdb.NewRecord(c.Name, vault)); err != nil {
		return err
	}

	addr, err := vault.Address(chainParams)
	if err != nil {
		return err
	}

	log.Infof("Created vault %s (%s)", c.Name, pathInfo)
	log.Infof("Fund the vault by sending to %v", addr)

	return nil
}

// buildVault assembles the vault either from explicitly supplied public keys
// or by deriving all keys from the root key.
func (c *createVaultCommand) buildVault() (*vaultscript.Vault, string,
	error) {

	explicit := c.InternalKey != "" || c.SignerKeys != "" ||
		c.RecoveryKey != ""
	if !explicit {
		extendedKey, err := c.rootKey.read()
		if err != nil {
			return nil, "", fmt.Errorf("error reading root "+
				"key: %w", err)
		}

		ring := &keyring.KeyRing{
			ExtendedKey: extendedKey,
			ChainParams: chainParams,
		}
		vault, err := ring.DeriveVault(
			c.rootKey.VaultIndex, c.LockHeight,
		)
		if err != nil {
			return nil, "", fmt.Errorf("error deriving vault: %w",
				err)
		}

		return vault, "derivation path " +
			ring.AccountPath(c.rootKey.VaultIndex), nil
	}

	internalKey, err := parsePubKey(c.InternalKey)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing internal key: %w",
			err)
	}

	signerParts := strings.Split(c.SignerKeys, ",")
	if len(signerParts) != vaultscript.NumSigners {
		return nil, "", fmt.Errorf("--signerkeys must hold exactly "+
			"%d comma separated keys, got %d",
			vaultscript.NumSigners, len(signerParts))
	}
	var signerKeys [vaultscript.NumSigners]*btcec.PublicKey
	for idx, part := range signerParts {
		signerKeys[idx], err = parsePubKey(part)
		if err != nil {
			return nil, "", fmt.Errorf("error parsing signer "+
				"key %d: %w", idx, err)
		}
	}

	recoveryKey, err := parsePubKey(c.RecoveryKey)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing recovery key: %w",
			err)
	}

	vault, err := vaultscript.NewVault(
		internalKey, signerKeys, recoveryKey, c.LockHeight,
	)
	if err != nil {
		return nil, "", err
	}

	return vault, "explicit keys", nil
}

func parsePubKey(keyHex string) (*btcec.PublicKey, error) {
	keyBytes, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(keyBytes)
}
