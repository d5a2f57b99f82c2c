package btc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrTxNotFound = errors.New("transaction not found")

	ErrOutputSpent = errors.New("output already spent")
)

// ExplorerAPI talks to an esplora style block explorer, the kind mempool
// .space and blockstream.info expose.
type ExplorerAPI struct {
	BaseURL string
}

type TX struct {
	TXID   string  `json:"txid"`
	Vin    []*Vin  `json:"vin"`
	Vout   []*Vout `json:"vout"`
	Status *Status `json:"status"`
}

type Vin struct {
	Txid     string `json:"txid"`
	Vout     int    `json:"vout"`
	Prevout  *Vout  `json:"prevout"`
	Sequence uint32 `json:"sequence"`
}

type Vout struct {
	ScriptPubkey     string `json:"scriptpubkey"`
	ScriptPubkeyAsm  string `json:"scriptpubkey_asm"`
	ScriptPubkeyType string `json:"scriptpubkey_type"`
	ScriptPubkeyAddr string `json:"scriptpubkey_address"`
	Value            uint64 `json:"value"`
	Outspend         *Outspend
}

type Outspend struct {
	Spent  bool    `json:"spent"`
	Txid   string  `json:"txid"`
	Vin    int     `json:"vin"`
	Status *Status `json:"status"`
}

type Status struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int    `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// Transaction fetches a transaction and the spentness of each of its
// outputs.
func (a *ExplorerAPI) Transaction(txid string) (*TX, error) {
	tx := &TX{}
	err := fetchJSON(fmt.Sprintf("%s/tx/%s", a.BaseURL, txid), tx)
	if err != nil {
		return nil, err
	}
	for idx, vout := range tx.Vout {
		url := fmt.Sprintf(
			"%s/tx/%s/outspend/%d", a.BaseURL, txid, idx,
		)
		outspend := Outspend{}
		err := fetchJSON(url, &outspend)
		if err != nil {
			return nil, err
		}
		vout.Outspend = &outspend
	}
	return tx, nil
}

// BlockHeight returns the explorer's current chain tip height.
func (a *ExplorerAPI) BlockHeight() (uint32, error) {
	url := fmt.Sprintf("%s/blocks/tip/height", a.BaseURL)
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body := new(bytes.Buffer)
	_, err = body.ReadFrom(resp.Body)
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseUint(strings.TrimSpace(body.String()), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("error parsing tip height %q: %w",
			body.String(), err)
	}

	return uint32(height), nil
}

// Unspent fetches the output behind the given outpoint and makes sure it is
// still spendable.
func (a *ExplorerAPI) Unspent(op wire.OutPoint) (*Vout, error) {
	tx, err := a.Transaction(op.Hash.String())
	if err != nil {
		return nil, err
	}
	if int(op.Index) >= len(tx.Vout) {
		return nil, fmt.Errorf("transaction %v only has %d outputs",
			op.Hash, len(tx.Vout))
	}

	vout := tx.Vout[op.Index]
	if vout.Outspend != nil && vout.Outspend.Spent {
		return nil, fmt.Errorf("%w: outpoint %v spent by %s",
			ErrOutputSpent, op, vout.Outspend.Txid)
	}

	return vout, nil
}

// PublishTx broadcasts the given hex serialized transaction and returns the
// explorer's response, the transaction hash on success.
func (a *ExplorerAPI) PublishTx(rawTxHex string) (string, error) {
	url := fmt.Sprintf("%s/tx", a.BaseURL)
	resp, err := http.Post(url, "text/plain", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	body := new(bytes.Buffer)
	_, err = body.ReadFrom(resp.Body)
	if err != nil {
		return "", err
	}

	log.Debugf("Explorer response to publish request: %s", body.String())

	return body.String(), nil
}

// ParseOutpoint parses a <txid>:<vout> string into a wire outpoint.
func ParseOutpoint(s string) (*wire.OutPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, errors.New("outpoint must be formatted as " +
			"<txid>:<vout>")
	}

	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return nil, fmt.Errorf("error parsing txid: %w", err)
	}

	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("error parsing output index: %w", err)
	}

	return wire.NewOutPoint(hash, uint32(index)), nil
}

func fetchJSON(url string, target interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body := new(bytes.Buffer)
	_, err = body.ReadFrom(resp.Body)
	if err != nil {
		return err
	}
	err = json.Unmarshal(body.Bytes(), target)
	if err != nil {
		if body.String() == "Transaction not found" {
			return ErrTxNotFound
		}
	}
	return err
}
