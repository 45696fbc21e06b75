package pubsub

import (
	"time"

	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

func getTradePayload(trade domain.Trade) map[string]interface{} {
	payload := map[string]interface{}{
		"id":        trade.ID,
		"variant":   trade.Variant.String(),
		"side":      trade.Side.String(),
		"direction": trade.Direction.String(),
		"phase":     trade.Status.Phase.String(),
		"failed":    trade.Status.Failed,
		"dispute":   trade.DisputeState.String(),
		"contract":  getContractPayload(trade.Contract),
		"txs":       getTxsPayload(trade),
		"updated_at": time.Unix(trade.Timestamp.Updated, 0).
			Format(time.RFC3339),
	}
	if trade.ErrorMessage != "" {
		payload["error"] = trade.ErrorMessage
	}
	if trade.Timestamp.Closed > 0 {
		payload["closed_at"] = time.Unix(trade.Timestamp.Closed, 0).
			Format(time.RFC3339)
	}
	return payload
}

func getContractPayload(c domain.Contract) map[string]interface{} {
	payload := map[string]interface{}{
		"base_asset": c.BaseAsset,
		"amount":     c.Amount,
	}
	if c.QuoteAsset != "" {
		payload["quote_asset"] = c.QuoteAsset
		payload["quote_amount"] = c.QuoteAmount
	}
	if c.PaymentMethod != "" {
		payload["payment_method"] = c.PaymentMethod
		payload["payment_amount"] = c.PaymentAmount
	}
	return payload
}

func getTxsPayload(trade domain.Trade) map[string]string {
	txs := make(map[string]string)
	for name, tx := range map[string]domain.TxRef{
		"fee":            trade.FeeTx,
		"deposit":        trade.DepositTx,
		"delayed_payout": trade.DelayedPayoutTx,
		"payout":         trade.PayoutTx,
		"swap":           trade.SwapTx,
	} {
		if !tx.IsEmpty() {
			txs[name] = tx.ID
		}
	}
	return txs
}
