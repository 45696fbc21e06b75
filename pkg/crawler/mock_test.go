package crawler_test

import (
	"errors"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
)

type mockExplorer struct {
	mock.Mock
}

func (m *mockExplorer) GetUnspents(addr string) ([]explorer.Utxo, error) {
	args := m.Called(addr)

	var res []explorer.Utxo
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Utxo)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) GetUnspentsForAddresses(
	addresses []string,
) ([]explorer.Utxo, error) {
	args := m.Called(addresses)

	var res []explorer.Utxo
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Utxo)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) GetUnspentStatus(
	hash string, index uint32,
) (explorer.UtxoStatus, error) {
	args := m.Called(hash, index)

	var res explorer.UtxoStatus
	if a := args.Get(0); a != nil {
		res = a.(explorer.UtxoStatus)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) GetTransactionHex(txid string) (string, error) {
	args := m.Called(txid)
	return args.String(0), args.Error(1)
}

func (m *mockExplorer) GetTransactionStatus(
	txid string,
) (explorer.TransactionStatus, error) {
	args := m.Called(txid)

	var res explorer.TransactionStatus
	if a := args.Get(0); a != nil {
		res = a.(explorer.TransactionStatus)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) BroadcastTransaction(txhex string) (string, error) {
	args := m.Called(txhex)
	return args.String(0), args.Error(1)
}

func (m *mockExplorer) GetBlockHeight() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

type txStatus struct {
	confirmed bool
	height    int
}

func (s txStatus) Confirmed() bool   { return s.confirmed }
func (s txStatus) BlockHash() string { return "" }
func (s txStatus) BlockHeight() int  { return s.height }
func (s txStatus) BlockTime() int    { return 0 }

type utxoStatus struct {
	spent bool
	hash  string
}

func (s utxoStatus) Spent() bool  { return s.spent }
func (s utxoStatus) Hash() string { return s.hash }
func (s utxoStatus) Index() int   { return 0 }

var errExplorerDown = errors.New("explorer down")
