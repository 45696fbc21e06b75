package esplora

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"github.com/vulpemventures/go-elements/transaction"
	"golang.org/x/sync/errgroup"
)

func (e *esplora) GetUnspents(addr string) ([]explorer.Utxo, error) {
	status, resp, err := e.get(fmt.Sprintf("/address/%s/utxo", addr))
	if err != nil {
		return nil, fmt.Errorf("error on retrieving utxos: %s", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}

	var witnessOuts []witnessUtxo
	if err := json.Unmarshal([]byte(resp), &witnessOuts); err != nil {
		return nil, fmt.Errorf("error on retrieving utxos: %s", err)
	}

	unspents := make([]explorer.Utxo, 0, len(witnessOuts))
	for _, out := range witnessOuts {
		// Confidential outputs can't be spent by the engine.
		if out.IsConfidential() {
			continue
		}
		script, err := e.getPrevoutScript(out.UHash, out.UIndex)
		if err != nil {
			return nil, fmt.Errorf("error on retrieving utxos: %s", err)
		}
		unspents = append(unspents, explorer.NewWitnessUtxo(
			out.UHash, out.UIndex, out.UValue, out.UAsset, script,
			out.UStatus.Confirmed,
		))
	}

	return unspents, nil
}

func (e *esplora) GetUnspentsForAddresses(
	addresses []string,
) ([]explorer.Utxo, error) {
	unspentsByAddress := make([][]explorer.Utxo, len(addresses))
	eg := &errgroup.Group{}
	for i := range addresses {
		i := i
		eg.Go(func() error {
			unspents, err := e.GetUnspents(addresses[i])
			if err != nil {
				return err
			}
			unspentsByAddress[i] = unspents
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	unspents := make([]explorer.Utxo, 0)
	for _, u := range unspentsByAddress {
		unspents = append(unspents, u...)
	}
	return unspents, nil
}

func (e *esplora) GetUnspentStatus(
	hash string, index uint32,
) (explorer.UtxoStatus, error) {
	status, resp, err := e.get(fmt.Sprintf("/tx/%s/outspend/%d", hash, index))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, explorer.ErrTransactionNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}

	var utxoStatus utxoStatus
	if err := json.Unmarshal([]byte(resp), &utxoStatus); err != nil {
		return nil, err
	}
	return utxoStatus, nil
}

func (e *esplora) getPrevoutScript(hash string, index uint32) ([]byte, error) {
	prevoutTxHex, err := e.GetTransactionHex(hash)
	if err != nil {
		return nil, err
	}
	tx, err := transaction.NewTxFromHex(prevoutTxHex)
	if err != nil {
		return nil, err
	}
	if int(index) >= len(tx.Outputs) {
		return nil, fmt.Errorf("output %s:%d not found", hash, index)
	}
	return tx.Outputs[index].Script, nil
}
