package db_test

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

func makeRandomTrade() *domain.Trade {
	trade, _ := domain.NewMakerTrade(domain.Offer{
		ID:        randomId(),
		Variant:   domain.VariantSwap,
		Direction: domain.DirectionSell,
		Contract: domain.Contract{
			Network:     "regtest",
			BaseAsset:   randomHex(32),
			QuoteAsset:  randomHex(32),
			Amount:      100000,
			QuoteAmount: 5000000,
			FeeRate:     decimal.NewFromFloat(0.1),
		},
		MakerPubKey: randomBytes(33),
	})
	return trade
}

func randomHex(len int) string {
	return hex.EncodeToString(randomBytes(len))
}

func randomId() string {
	return uuid.New().String()
}

func randomBytes(len int) []byte {
	b := make([]byte, len)
	//nolint
	rand.Read(b)
	return b
}
