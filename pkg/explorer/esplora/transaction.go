package esplora

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
)

func (e *esplora) GetTransactionHex(hash string) (string, error) {
	status, resp, err := e.get(fmt.Sprintf("/tx/%s/hex", hash))
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", explorer.ErrTransactionNotFound
	}
	if status != http.StatusOK {
		return "", fmt.Errorf(resp)
	}

	return resp, nil
}

func (e *esplora) GetTransactionStatus(
	hash string,
) (explorer.TransactionStatus, error) {
	status, resp, err := e.get(fmt.Sprintf("/tx/%s/status", hash))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, explorer.ErrTransactionNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}

	var txStatus txStatus
	if err := json.Unmarshal([]byte(resp), &txStatus); err != nil {
		return nil, err
	}

	return txStatus, nil
}

func (e *esplora) BroadcastTransaction(txHex string) (string, error) {
	headers := map[string]string{
		"Content-Type": "text/plain",
	}

	status, resp, err := e.request(http.MethodPost, "/tx", txHex, headers)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf(resp)
	}

	return resp, nil
}
