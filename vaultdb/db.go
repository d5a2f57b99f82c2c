package vaultdb

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.etcd.io/bbolt"

	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

var (
	// vaultBucket holds one entry per vault, keyed by the vault name.
	vaultBucket = []byte("vaults")

	ErrVaultNotFound = errors.New("vault not found")

	ErrVaultExists = errors.New("vault with that name already exists")
)

// DefaultOpenTimeout is how long opening the database file may block on
// another process holding the lock.
const DefaultOpenTimeout = 5 * time.Second

// Record is the persisted form of a vault. Only public key material and the
// lock height are stored; private keys never touch the database.
type Record struct {
	// Name identifies the vault, unique within one database.
	Name string `json:"name"`

	// InternalKey is the hex encoded compressed internal key.
	InternalKey string `json:"internal_key"`

	// SignerKeys are the hex encoded compressed threshold keys, in key
	// index order.
	SignerKeys []string `json:"signer_keys"`

	// RecoveryKey is the hex encoded compressed recovery key.
	RecoveryKey string `json:"recovery_key"`

	// LockHeight is the block height the recovery leaf matures at.
	LockHeight uint32 `json:"lock_height"`

	// CreatedAt is when the vault was first stored.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists vault records in a bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens, creating if necessary, the vault database at the given path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: DefaultOpenTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening vault db %s: %w", path,
			err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vaultBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debugf("Opened vault database at %s", path)

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a new vault record. Records are immutable once stored, a second
// vault with the same name is refused.
func (s *Store) Put(record *Record) error {
	if record.Name == "" {
		return errors.New("vault name is required")
	}

	value, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(vaultBucket)
		if bucket.Get([]byte(record.Name)) != nil {
			return fmt.Errorf("%w: %s", ErrVaultExists,
				record.Name)
		}

		return bucket.Put([]byte(record.Name), value)
	})
	if err != nil {
		return err
	}

	log.Infof("Stored vault %s, lock height %d", record.Name,
		record.LockHeight)

	return nil
}

// Get loads the vault record with the given name.
func (s *Store) Get(name string) (*Record, error) {
	var record *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(vaultBucket).Get([]byte(name))
		if value == nil {
			return fmt.Errorf("%w: %s", ErrVaultNotFound, name)
		}

		record = &Record{}
		return json.Unmarshal(value, record)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// List returns all stored vault records, in name order.
func (s *Store) List() ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(vaultBucket).ForEach(
			func(_, value []byte) error {
				record := &Record{}
				if err := json.Unmarshal(
					value, record,
				); err != nil {
					return err
				}

				records = append(records, record)
				return nil
			},
		)
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes the vault record with the given name.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(vaultBucket)
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrVaultNotFound, name)
		}

		return bucket.Delete([]byte(name))
	})
}

// NewRecord captures a vault's public key material for storage.
func NewRecord(name string, vault *vaultscript.Vault) *Record {
	signerKeys := make([]string, len(vault.SignerKeys))
	for idx, key := range vault.SignerKeys {
		signerKeys[idx] = hex.EncodeToString(key.SerializeCompressed())
	}

	return &Record{
		Name: name,
		InternalKey: hex.EncodeToString(
			vault.InternalKey.SerializeCompressed(),
		),
		SignerKeys:  signerKeys,
		RecoveryKey: hex.EncodeToString(
			vault.RecoveryKey.SerializeCompressed(),
		),
		LockHeight: vault.LockHeight,
		CreatedAt:  time.Now().UTC(),
	}
}

// Vault reconstructs the full vault from the stored key material. The merkle
// root and output key are derived, not stored, so a corrupted record cannot
// silently change the scripts the vault commits to.
func (r *Record) Vault() (*vaultscript.Vault, error) {
	if len(r.SignerKeys) != vaultscript.NumSigners {
		return nil, fmt.Errorf("record %s holds %d signer keys, "+
			"need %d", r.Name, len(r.SignerKeys),
			vaultscript.NumSigners)
	}

	internalKey, err := parseKey(r.InternalKey)
	if err != nil {
		return nil, fmt.Errorf("error parsing internal key: %w", err)
	}

	var signerKeys [vaultscript.NumSigners]*btcec.PublicKey
	for idx, keyHex := range r.SignerKeys {
		signerKeys[idx], err = parseKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("error parsing signer key "+
				"%d: %w", idx, err)
		}
	}

	recoveryKey, err := parseKey(r.RecoveryKey)
	if err != nil {
		return nil, fmt.Errorf("error parsing recovery key: %w", err)
	}

	return vaultscript.NewVault(
		internalKey, signerKeys, recoveryKey, r.LockHeight,
	)
}

func parseKey(keyHex string) (*btcec.PublicKey, error) {
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(keyBytes)
}
