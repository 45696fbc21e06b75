package esplora

// witnessUtxo is the utxo in the format returned by the esplora API.
type witnessUtxo struct {
	UHash            string `json:"txid"`
	UIndex           uint32 `json:"vout"`
	UValue           uint64 `json:"value"`
	UAsset           string `json:"asset"`
	UValueCommitment string `json:"valuecommitment"`
	UAssetCommitment string `json:"assetcommitment"`
	UStatus          status `json:"status"`
}

type status struct {
	Confirmed bool `json:"confirmed"`
}

func (wu witnessUtxo) IsConfidential() bool {
	return len(wu.UValueCommitment) > 0 && len(wu.UAssetCommitment) > 0
}

// txStatus implements explorer.TransactionStatus interface
type txStatus map[string]interface{}

func (s txStatus) Confirmed() bool {
	iConfirmed := s["confirmed"]
	if iConfirmed == nil {
		return false
	}
	confirmed, ok := iConfirmed.(bool)
	if !ok {
		return false
	}
	return confirmed
}

func (s txStatus) BlockHash() string {
	iBlockHash := s["block_hash"]
	if iBlockHash == nil {
		return ""
	}
	blockHash, ok := iBlockHash.(string)
	if !ok {
		return ""
	}
	return blockHash
}

func (s txStatus) BlockHeight() int {
	iBlockHeight := s["block_height"]
	if iBlockHeight == nil {
		return -1
	}
	blockHeight, ok := iBlockHeight.(float64)
	if !ok {
		return -1
	}
	return int(blockHeight)
}

func (s txStatus) BlockTime() int {
	iBlockTime := s["block_time"]
	if iBlockTime == nil {
		return -1
	}
	blockTime, ok := iBlockTime.(float64)
	if !ok {
		return -1
	}
	return int(blockTime)
}

// utxoStatus implements explorer.UtxoStatus interface
type utxoStatus map[string]interface{}

func (s utxoStatus) Spent() bool {
	iSpent := s["spent"]
	if iSpent == nil {
		return false
	}
	spent, ok := iSpent.(bool)
	if !ok {
		return false
	}
	return spent
}

func (s utxoStatus) Hash() string {
	iHash := s["txid"]
	if iHash == nil {
		return ""
	}
	hash, ok := iHash.(string)
	if !ok {
		return ""
	}
	return hash
}

func (s utxoStatus) Index() int {
	iIndex := s["vin"]
	if iIndex == nil {
		return -1
	}
	index, ok := iIndex.(float64)
	if !ok {
		return -1
	}
	return int(index)
}
