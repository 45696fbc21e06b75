package httpinterface

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

type contractInfo struct {
	Network       string          `json:"network,omitempty"`
	BaseAsset     string          `json:"base_asset"`
	QuoteAsset    string          `json:"quote_asset,omitempty"`
	Amount        uint64          `json:"amount"`
	QuoteAmount   uint64          `json:"quote_amount,omitempty"`
	BuyerDeposit  uint64          `json:"buyer_deposit,omitempty"`
	SellerDeposit uint64          `json:"seller_deposit,omitempty"`
	MakerFee      uint64          `json:"maker_fee,omitempty"`
	TakerFee      uint64          `json:"taker_fee,omitempty"`
	FeeRate       decimal.Decimal `json:"fee_rate"`
	FeeAddress    string          `json:"fee_address,omitempty"`
	RefundAddress string          `json:"refund_address,omitempty"`
	LockBlocks    uint32          `json:"lock_blocks,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaymentAmount string          `json:"payment_amount,omitempty"`
}

func (c contractInfo) toDomain() domain.Contract {
	return domain.Contract{
		Network:       c.Network,
		BaseAsset:     c.BaseAsset,
		QuoteAsset:    c.QuoteAsset,
		Amount:        c.Amount,
		QuoteAmount:   c.QuoteAmount,
		BuyerDeposit:  c.BuyerDeposit,
		SellerDeposit: c.SellerDeposit,
		MakerFee:      c.MakerFee,
		TakerFee:      c.TakerFee,
		FeeRate:       c.FeeRate,
		FeeAddress:    c.FeeAddress,
		RefundAddress: c.RefundAddress,
		LockBlocks:    c.LockBlocks,
		PaymentMethod: c.PaymentMethod,
		PaymentAmount: c.PaymentAmount,
	}
}

func newContractInfo(c domain.Contract) contractInfo {
	return contractInfo{
		Network:       c.Network,
		BaseAsset:     c.BaseAsset,
		QuoteAsset:    c.QuoteAsset,
		Amount:        c.Amount,
		QuoteAmount:   c.QuoteAmount,
		BuyerDeposit:  c.BuyerDeposit,
		SellerDeposit: c.SellerDeposit,
		MakerFee:      c.MakerFee,
		TakerFee:      c.TakerFee,
		FeeRate:       c.FeeRate,
		FeeAddress:    c.FeeAddress,
		RefundAddress: c.RefundAddress,
		LockBlocks:    c.LockBlocks,
		PaymentMethod: c.PaymentMethod,
		PaymentAmount: c.PaymentAmount,
	}
}

type offerInfo struct {
	ID           string       `json:"id"`
	Variant      string       `json:"variant"`
	Direction    string       `json:"direction"`
	Contract     contractInfo `json:"contract"`
	MakerAddress string       `json:"maker_address,omitempty"`
	MakerPubKey  string       `json:"maker_pubkey,omitempty"`
}

func (o offerInfo) toDomain() (domain.Offer, error) {
	variant, err := parseVariant(o.Variant)
	if err != nil {
		return domain.Offer{}, err
	}
	direction, err := parseDirection(o.Direction)
	if err != nil {
		return domain.Offer{}, err
	}
	var pubkey []byte
	if o.MakerPubKey != "" {
		if pubkey, err = hex.DecodeString(o.MakerPubKey); err != nil {
			return domain.Offer{}, fmt.Errorf("maker pubkey must be in hex format")
		}
	}
	return domain.Offer{
		ID:           o.ID,
		Variant:      variant,
		Direction:    direction,
		Contract:     o.Contract.toDomain(),
		MakerAddress: o.MakerAddress,
		MakerPubKey:  pubkey,
	}, nil
}

func newOfferInfo(o domain.Offer) offerInfo {
	return offerInfo{
		ID:           o.ID,
		Variant:      o.Variant.String(),
		Direction:    o.Direction.String(),
		Contract:     newContractInfo(o.Contract),
		MakerAddress: o.MakerAddress,
		MakerPubKey:  hex.EncodeToString(o.MakerPubKey),
	}
}

type tradeInfo struct {
	ID            string            `json:"id"`
	Variant       string            `json:"variant"`
	Side          string            `json:"side"`
	Direction     string            `json:"direction"`
	Phase         string            `json:"phase"`
	Failed        bool              `json:"failed"`
	Dispute       string            `json:"dispute"`
	Error         string            `json:"error,omitempty"`
	LastTask      string            `json:"last_task,omitempty"`
	PeerAddress   string            `json:"peer_address,omitempty"`
	Contract      contractInfo      `json:"contract"`
	Txs           map[string]string `json:"txs,omitempty"`
	LockTime      uint32            `json:"lock_time,omitempty"`
	MessageStates map[string]string `json:"message_states,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	ClosedAt      string            `json:"closed_at,omitempty"`
}

func newTradeInfo(t domain.Trade) tradeInfo {
	info := tradeInfo{
		ID:          t.ID,
		Variant:     t.Variant.String(),
		Side:        t.Side.String(),
		Direction:   t.Direction.String(),
		Phase:       t.Status.Phase.String(),
		Failed:      t.Status.Failed,
		Dispute:     t.DisputeState.String(),
		Error:       t.ErrorMessage,
		LastTask:    t.LastTask,
		PeerAddress: t.PeerAddress,
		Contract:    newContractInfo(t.Contract),
		LockTime:    t.LockTime,
		CreatedAt:   formatTimestamp(t.Timestamp.Created),
		UpdatedAt:   formatTimestamp(t.Timestamp.Updated),
	}
	if t.Timestamp.Closed > 0 {
		info.ClosedAt = formatTimestamp(t.Timestamp.Closed)
	}

	txs := make(map[string]string)
	for name, tx := range map[string]domain.TxRef{
		"fee":            t.FeeTx,
		"deposit":        t.DepositTx,
		"delayed_payout": t.DelayedPayoutTx,
		"payout":         t.PayoutTx,
		"swap":           t.SwapTx,
	} {
		if !tx.IsEmpty() {
			txs[name] = tx.ID
		}
	}
	if len(txs) > 0 {
		info.Txs = txs
	}

	if len(t.MessageStates) > 0 {
		info.MessageStates = make(map[string]string, len(t.MessageStates))
		for msgType, state := range t.MessageStates {
			info.MessageStates[msgType] = state.String()
		}
	}
	return info
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type webhookRequest struct {
	Topic    string `json:"topic"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

type addressResponse struct {
	Address string `json:"address"`
}

type balanceResponse struct {
	Asset     string `json:"asset"`
	Total     uint64 `json:"total"`
	Locked    uint64 `json:"locked"`
	Available uint64 `json:"available"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseVariant(v string) (domain.Variant, error) {
	switch strings.ToUpper(v) {
	case domain.VariantEscrow.String():
		return domain.VariantEscrow, nil
	case domain.VariantSwap.String():
		return domain.VariantSwap, nil
	default:
		return 0, fmt.Errorf("variant must be either ESCROW or SWAP")
	}
}

func parseDirection(d string) (domain.Direction, error) {
	switch strings.ToUpper(d) {
	case "BUY", domain.DirectionBuy.String():
		return domain.DirectionBuy, nil
	case "SELL", domain.DirectionSell.String():
		return domain.DirectionSell, nil
	default:
		return 0, fmt.Errorf("direction must be either BUY or SELL")
	}
}

func formatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
