package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"github.com/tdex-network/tdex-tradeengine/pkg/swap"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/transaction"
)

var (
	ErrMissingOrSpentInputs = errors.New("bad-txns-inputs-missingorspent")
	ErrTxAlreadyConfirmed   = errors.New("transaction already confirmed")
)

type ledgerTx struct {
	hex    string
	tx     *transaction.Transaction
	height int
	time   int
}

type output struct {
	asset   string
	value   uint64
	script  []byte
	spentBy string
	spentIn int
}

// Ledger is an in-memory elements chain implementing explorer.Service. It
// accepts any tx whose inputs exist and are unspent, without verifying
// signatures, and confirms the txs in mempool when Mine is called.
type Ledger struct {
	lock     sync.RWMutex
	network  *network.Network
	height   int
	counter  uint32
	txs      map[string]*ledgerTx
	outputs  map[string]*output
	byScript map[string][]string

	broadcastHook func(txid string) error
}

// NewLedger returns an empty ledger for the given network.
func NewLedger(net *network.Network) *Ledger {
	if net == nil {
		net = &network.Regtest
	}
	return &Ledger{
		network:  net,
		height:   1,
		txs:      make(map[string]*ledgerTx),
		outputs:  make(map[string]*output),
		byScript: make(map[string][]string),
	}
}

// SetBroadcastHook registers a func invoked before accepting any broadcasted
// tx. The broadcast fails if the hook returns an error.
func (l *Ledger) SetBroadcastHook(hook func(txid string) error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.broadcastHook = hook
}

// Fund adds to mempool a tx with no inputs sending the given amount of asset
// to the address.
func (l *Ledger) Fund(addr, asset string, value uint64) (string, error) {
	script, err := swap.OutputScript(addr, l.network)
	if err != nil {
		return "", err
	}
	assetBytes, err := swap.AssetToBytes(asset)
	if err != nil {
		return "", err
	}
	valueBytes, err := swap.ValueToBytes(value)
	if err != nil {
		return "", err
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	l.counter++
	tx := transaction.NewTx(2)
	tx.Locktime = l.counter
	tx.AddOutput(transaction.NewTxOutput(assetBytes, valueBytes, script))
	txHex, err := tx.ToHex()
	if err != nil {
		return "", err
	}
	return l.addTx(txHex, tx), nil
}

// Mine confirms all txs in mempool in a new block and returns its height.
func (l *Ledger) Mine() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.height++
	now := int(time.Now().Unix())
	for _, tx := range l.txs {
		if tx.height == 0 {
			tx.height = l.height
			tx.time = now
		}
	}
	return l.height
}

// DoubleSpend replaces the given mempool tx with a conflicting one spending
// its first input, and returns the hash of the latter.
func (l *Ledger) DoubleSpend(txid string) (string, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	ltx, ok := l.txs[txid]
	if !ok {
		return "", explorer.ErrTransactionNotFound
	}
	if ltx.height > 0 {
		return "", ErrTxAlreadyConfirmed
	}
	if len(ltx.tx.Inputs) <= 0 {
		return "", fmt.Errorf("tx %s has no inputs", txid)
	}

	in := ltx.tx.Inputs[0]
	prevout := l.outputs[outpointKey(swap.TxIDFromBytes(in.Hash), in.Index)]

	l.removeTx(txid, ltx)

	l.counter++
	conflicting := transaction.NewTx(2)
	conflicting.Locktime = l.counter
	conflicting.AddInput(transaction.NewTxInput(in.Hash, in.Index))
	assetBytes, _ := swap.AssetToBytes(prevout.asset)
	valueBytes, _ := swap.ValueToBytes(prevout.value)
	conflicting.AddOutput(
		transaction.NewTxOutput(assetBytes, valueBytes, prevout.script),
	)
	txHex, err := conflicting.ToHex()
	if err != nil {
		return "", err
	}
	return l.addTx(txHex, conflicting), nil
}

func (l *Ledger) GetUnspents(addr string) ([]explorer.Utxo, error) {
	script, err := address.ToOutputScript(addr)
	if err != nil {
		return nil, err
	}

	l.lock.RLock()
	defer l.lock.RUnlock()

	keys := l.byScript[hex.EncodeToString(script)]
	utxos := make([]explorer.Utxo, 0, len(keys))
	for _, key := range keys {
		out := l.outputs[key]
		if out == nil || out.spentBy != "" {
			continue
		}
		txid, index := splitOutpointKey(key)
		utxos = append(utxos, explorer.NewWitnessUtxo(
			txid, index, out.value, out.asset, out.script,
			l.txs[txid].height > 0,
		))
	}
	return utxos, nil
}

func (l *Ledger) GetUnspentsForAddresses(
	addresses []string,
) ([]explorer.Utxo, error) {
	utxos := make([]explorer.Utxo, 0)
	for _, addr := range addresses {
		u, err := l.GetUnspents(addr)
		if err != nil {
			return nil, err
		}
		utxos = append(utxos, u...)
	}
	return utxos, nil
}

func (l *Ledger) GetUnspentStatus(
	txid string, index uint32,
) (explorer.UtxoStatus, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	out, ok := l.outputs[outpointKey(txid, index)]
	if !ok {
		return nil, explorer.ErrTransactionNotFound
	}
	return utxoStatus{out.spentBy != "", out.spentBy, out.spentIn}, nil
}

func (l *Ledger) GetTransactionHex(txid string) (string, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	tx, ok := l.txs[txid]
	if !ok {
		return "", explorer.ErrTransactionNotFound
	}
	return tx.hex, nil
}

func (l *Ledger) GetTransactionStatus(
	txid string,
) (explorer.TransactionStatus, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	tx, ok := l.txs[txid]
	if !ok {
		return nil, explorer.ErrTransactionNotFound
	}
	if tx.height <= 0 {
		return txStatus{}, nil
	}
	return txStatus{
		confirmed: true,
		blockHash: fmt.Sprintf("%064x", tx.height),
		height:    tx.height,
		time:      tx.time,
	}, nil
}

// BroadcastTransaction adds the tx to mempool. Broadcasting a tx already in
// the ledger is a no-op.
func (l *Ledger) BroadcastTransaction(txHex string) (string, error) {
	tx, err := transaction.NewTxFromHex(txHex)
	if err != nil {
		return "", err
	}
	txid := tx.TxHash().String()

	l.lock.RLock()
	hook := l.broadcastHook
	l.lock.RUnlock()
	if hook != nil {
		if err := hook(txid); err != nil {
			return "", err
		}
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.txs[txid]; ok {
		return txid, nil
	}
	for _, in := range tx.Inputs {
		out, ok := l.outputs[outpointKey(swap.TxIDFromBytes(in.Hash), in.Index)]
		if !ok || out.spentBy != "" {
			return "", ErrMissingOrSpentInputs
		}
	}
	return l.addTx(txHex, tx), nil
}

func (l *Ledger) GetBlockHeight() (int, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.height, nil
}

func (l *Ledger) addTx(txHex string, tx *transaction.Transaction) string {
	txid := tx.TxHash().String()
	l.txs[txid] = &ledgerTx{hex: txHex, tx: tx}

	for i, in := range tx.Inputs {
		key := outpointKey(swap.TxIDFromBytes(in.Hash), in.Index)
		if out, ok := l.outputs[key]; ok {
			out.spentBy = txid
			out.spentIn = i
		}
	}
	for i, out := range tx.Outputs {
		key := outpointKey(txid, uint32(i))
		l.outputs[key] = &output{
			asset:   swap.AssetFromBytes(out.Asset),
			value:   swap.ValueFromBytes(out.Value),
			script:  out.Script,
			spentIn: -1,
		}
		scriptKey := hex.EncodeToString(out.Script)
		l.byScript[scriptKey] = append(l.byScript[scriptKey], key)
	}
	return txid
}

func (l *Ledger) removeTx(txid string, ltx *ledgerTx) {
	for _, in := range ltx.tx.Inputs {
		key := outpointKey(swap.TxIDFromBytes(in.Hash), in.Index)
		if out, ok := l.outputs[key]; ok && out.spentBy == txid {
			out.spentBy = ""
			out.spentIn = -1
		}
	}
	for i, out := range ltx.tx.Outputs {
		key := outpointKey(txid, uint32(i))
		delete(l.outputs, key)
		scriptKey := hex.EncodeToString(out.Script)
		keys := l.byScript[scriptKey]
		for j, k := range keys {
			if k == key {
				l.byScript[scriptKey] = append(keys[:j], keys[j+1:]...)
				break
			}
		}
	}
	delete(l.txs, txid)
}

func outpointKey(txid string, index uint32) string {
	return fmt.Sprintf("%s:%d", txid, index)
}

func splitOutpointKey(key string) (string, uint32) {
	var index uint32
	txid := key[:64]
	fmt.Sscanf(key[65:], "%d", &index)
	return txid, index
}

type txStatus struct {
	confirmed bool
	blockHash string
	height    int
	time      int
}

func (s txStatus) Confirmed() bool   { return s.confirmed }
func (s txStatus) BlockHash() string { return s.blockHash }
func (s txStatus) BlockTime() int    { return s.time }

func (s txStatus) BlockHeight() int {
	if !s.confirmed {
		return -1
	}
	return s.height
}

type utxoStatus struct {
	spent   bool
	spentBy string
	vin     int
}

func (s utxoStatus) Spent() bool  { return s.spent }
func (s utxoStatus) Hash() string { return s.spentBy }
func (s utxoStatus) Index() int   { return s.vin }
