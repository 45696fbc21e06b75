package esplora

import (
	"fmt"
	"net/http"
	"strconv"
)

func (e *esplora) GetBlockHeight() (int, error) {
	status, resp, err := e.get("/blocks/tip/height")
	if err != nil {
		return -1, err
	}
	if status != http.StatusOK {
		return -1, fmt.Errorf(resp)
	}

	blockHeight, err := strconv.Atoi(resp)
	if err != nil {
		return -1, err
	}

	return blockHeight, nil
}
