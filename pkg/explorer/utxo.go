package explorer

import "fmt"

// Utxo represents an unconfidential transaction output in the elements
// chain.
type Utxo interface {
	Hash() string
	Index() uint32
	Value() uint64
	Asset() string
	Script() []byte
	IsConfirmed() bool
	Key() string
}

type witnessUtxo struct {
	UHash      string
	UIndex     uint32
	UValue     uint64
	UAsset     string
	UScript    []byte
	UConfirmed bool
}

// NewWitnessUtxo is the factory for an unconfidential witness utxo.
func NewWitnessUtxo(
	hash string, index uint32, value uint64, asset string, script []byte,
	confirmed bool,
) Utxo {
	return witnessUtxo{hash, index, value, asset, script, confirmed}
}

func (wu witnessUtxo) Hash() string {
	return wu.UHash
}

func (wu witnessUtxo) Index() uint32 {
	return wu.UIndex
}

func (wu witnessUtxo) Value() uint64 {
	return wu.UValue
}

func (wu witnessUtxo) Asset() string {
	return wu.UAsset
}

func (wu witnessUtxo) Script() []byte {
	return wu.UScript
}

func (wu witnessUtxo) IsConfirmed() bool {
	return wu.UConfirmed
}

func (wu witnessUtxo) Key() string {
	return fmt.Sprintf("%s:%d", wu.UHash, wu.UIndex)
}
