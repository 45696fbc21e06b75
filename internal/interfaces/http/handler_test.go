package httpinterface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/offerbook"
)

type mockProtocol struct {
	mock.Mock
}

func (m *mockProtocol) trade(args mock.Arguments) (*domain.Trade, error) {
	var res *domain.Trade
	if a := args.Get(0); a != nil {
		res = a.(*domain.Trade)
	}
	return res, args.Error(1)
}

func (m *mockProtocol) PlaceOffer(
	_ context.Context, offer domain.Offer,
) (*domain.Trade, error) {
	return m.trade(m.Called(offer))
}

func (m *mockProtocol) TakeOffer(
	_ context.Context, offerID string,
) (*domain.Trade, error) {
	return m.trade(m.Called(offerID))
}

func (m *mockProtocol) InitiateSwap(
	_ context.Context, offerID string,
) (*domain.Trade, error) {
	return m.trade(m.Called(offerID))
}

func (m *mockProtocol) ConfirmPaymentStarted(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	return m.trade(m.Called(tradeID))
}

func (m *mockProtocol) ConfirmPaymentReceived(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	return m.trade(m.Called(tradeID))
}

func (m *mockProtocol) OpenDispute(
	_ context.Context, tradeID, reason string,
) (*domain.Trade, error) {
	return m.trade(m.Called(tradeID, reason))
}

func (m *mockProtocol) ResumeTrade(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	return m.trade(m.Called(tradeID))
}

func (m *mockProtocol) GetTrade(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	return m.trade(m.Called(tradeID))
}

func (m *mockProtocol) ListTrades(_ context.Context) ([]domain.Trade, error) {
	args := m.Called()
	return args.Get(0).([]domain.Trade), args.Error(1)
}

type mockWebhooks struct {
	mock.Mock
}

func (m *mockWebhooks) AddWebhook(
	_ context.Context, topic, endpoint, secret string,
) (string, error) {
	args := m.Called(topic, endpoint, secret)
	return args.String(0), args.Error(1)
}

func (m *mockWebhooks) RemoveWebhook(_ context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *mockWebhooks) ListWebhooks(
	_ context.Context, topic string,
) ([]pubsub.WebhookInfo, error) {
	args := m.Called(topic)
	var res []pubsub.WebhookInfo
	if a := args.Get(0); a != nil {
		res = a.([]pubsub.WebhookInfo)
	}
	return res, args.Error(1)
}

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) DeriveReceiveAddress(_ context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockWallet) Balance(
	_ context.Context, asset string,
) (uint64, uint64, error) {
	args := m.Called(asset)
	return args.Get(0).(uint64), args.Get(1).(uint64), args.Error(2)
}

type testServer struct {
	handler  http.Handler
	protocol *mockProtocol
	webhooks *mockWebhooks
	wallet   *mockWallet
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		protocol: &mockProtocol{},
		webhooks: &mockWebhooks{},
		wallet:   &mockWallet{},
	}
	svc, err := NewService(ServiceOpts{
		Address:        ":0",
		ProtocolSvc:    ts.protocol,
		OfferBook:      offerbook.NewOfferBook(),
		WebhookSvc:     ts.webhooks,
		WalletSvc:      ts.wallet,
		MetricsHandler: http.NotFoundHandler(),
		Network:        "regtest",
		FeeRate:        decimal.NewFromFloat(0.1),
		FeeAddress:     "fee-address",
		RefundAddress:  "refund-address",
	})
	require.NoError(t, err)
	ts.handler = svc.(*service).router()

	t.Cleanup(func() {
		ts.protocol.AssertExpectations(t)
		ts.webhooks.AssertExpectations(t)
		ts.wallet.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(
	t *testing.T, method, path string, body interface{},
) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func testTrade(id string) *domain.Trade {
	return &domain.Trade{
		ID:        id,
		Variant:   domain.VariantEscrow,
		Direction: domain.DirectionBuy,
		Status:    domain.Status{Phase: domain.PhaseDepositConfirmed},
		Contract: domain.Contract{
			BaseAsset: "base",
			Amount:    1000,
			FeeRate:   decimal.NewFromFloat(0.1),
		},
		DepositTx: domain.TxRef{ID: "deposit-txid"},
		MessageStates: map[string]domain.MessageState{
			"DepositTxMessage": domain.MessageStateAcknowledged,
		},
		Timestamp: domain.Timestamp{Created: 1, Updated: 2},
	}
}

func TestTradeEndpoints(t *testing.T) {
	ts := newTestServer(t)

	closed := testTrade("closed")
	closed.Status.Failed = true
	ts.protocol.On("ListTrades").Return(
		[]domain.Trade{*testTrade("open"), *closed}, nil,
	)
	ts.protocol.On("GetTrade", "open").Return(testTrade("open"), nil)
	ts.protocol.On("GetTrade", "unknown").Return(nil, domain.ErrTradeNotFound)

	t.Run("list", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/trades/", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var trades []tradeInfo
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
		require.Len(t, trades, 2)

		rec = ts.do(t, http.MethodGet, "/v1/trades/?open=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
		require.Len(t, trades, 1)
		require.Equal(t, "open", trades[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/trades/open", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var trade tradeInfo
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&trade))
		require.Equal(t, "DEPOSIT_CONFIRMED", trade.Phase)
		require.Equal(t, "BUYER", trade.Direction)
		require.Equal(t, map[string]string{"deposit": "deposit-txid"}, trade.Txs)
		require.Equal(t, "ACKNOWLEDGED", trade.MessageStates["DepositTxMessage"])

		rec = ts.do(t, http.MethodGet, "/v1/trades/unknown", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTradeActions(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		body           interface{}
		setup          func(m *mockProtocol)
		expectedStatus int
	}{
		{
			name: "payment started",
			path: "/v1/trades/trade/payment-started",
			setup: func(m *mockProtocol) {
				m.On("ConfirmPaymentStarted", "trade").Return(testTrade("trade"), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "payment received in wrong phase",
			path: "/v1/trades/trade/payment-received",
			setup: func(m *mockProtocol) {
				m.On("ConfirmPaymentReceived", "trade").Return(
					nil, fmt.Errorf("%w: PAYMENT_STARTED", protocol.ErrUnexpectedMessage),
				)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "dispute",
			path: "/v1/trades/trade/dispute",
			body: disputeRequest{Reason: " payment not received "},
			setup: func(m *mockProtocol) {
				m.On("OpenDispute", "trade", "payment not received").
					Return(testTrade("trade"), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "dispute on closed trade",
			path: "/v1/trades/trade/dispute",
			setup: func(m *mockProtocol) {
				m.On("OpenDispute", "trade", "").Return(nil, protocol.ErrTradeClosed)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "resume",
			path: "/v1/trades/trade/resume",
			setup: func(m *mockProtocol) {
				m.On("ResumeTrade", "trade").Return(testTrade("trade"), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "resume trade not interrupted",
			path: "/v1/trades/trade/resume",
			setup: func(m *mockProtocol) {
				m.On("ResumeTrade", "trade").Return(nil, protocol.ErrNothingToResume)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "take missing offer",
			path: "/v1/offers/offer/take",
			setup: func(m *mockProtocol) {
				m.On("TakeOffer", "offer").Return(nil, protocol.ErrMissingOffer)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "swap without funds",
			path: "/v1/offers/offer/swap",
			setup: func(m *mockProtocol) {
				m.On("InitiateSwap", "offer").Return(
					nil, fmt.Errorf("select inputs: %w", protocol.ErrInsufficientFunds),
				)
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			tt.setup(ts.protocol)

			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus != http.StatusOK {
				var res errorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
				require.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestOfferEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("place fills default terms", func(t *testing.T) {
		ts.protocol.On("PlaceOffer", mock.MatchedBy(func(o domain.Offer) bool {
			c := o.Contract
			return o.Variant == domain.VariantEscrow &&
				o.Direction == domain.DirectionSell &&
				c.Network == "regtest" &&
				c.FeeRate.Equal(decimal.NewFromFloat(0.1)) &&
				c.FeeAddress == "fee-address" &&
				c.RefundAddress == "refund-address"
		})).Return(testTrade("placed"), nil).Once()

		rec := ts.do(t, http.MethodPost, "/v1/offers/", offerInfo{
			Variant:   "escrow",
			Direction: "sell",
			Contract: contractInfo{
				BaseAsset:     "base",
				Amount:        1000,
				BuyerDeposit:  150,
				SellerDeposit: 150,
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("place with unknown variant", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/offers/", offerInfo{
			Variant:   "option",
			Direction: "sell",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("import and list", func(t *testing.T) {
		offer := offerInfo{
			ID:           "remote-offer",
			Variant:      "SWAP",
			Direction:    "SELL",
			MakerAddress: "ws://peer/p2p",
			MakerPubKey:  "02aabbcc",
			Contract: contractInfo{
				BaseAsset:   "base",
				QuoteAsset:  "quote",
				Amount:      1000,
				QuoteAmount: 2000,
				FeeRate:     decimal.NewFromFloat(0.1),
			},
		}
		rec := ts.do(t, http.MethodPost, "/v1/offers/import", offer)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/offers/", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var offers []offerInfo
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&offers))
		require.Len(t, offers, 1)
		require.Equal(t, "remote-offer", offers[0].ID)
		require.Equal(t, "02aabbcc", offers[0].MakerPubKey)

		rec = ts.do(t, http.MethodDelete, "/v1/offers/remote-offer", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/offers/", nil)
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&offers))
		require.Empty(t, offers)
	})

	t.Run("import without maker", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/offers/import", offerInfo{
			ID:        "remote-offer",
			Variant:   "SWAP",
			Direction: "SELL",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhookEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.webhooks.On("AddWebhook", "TRADE_FAILED", "http://hook", "secret").
		Return("hook-id", nil)
	ts.webhooks.On("AddWebhook", "UNKNOWN", "http://hook", "").
		Return("", fmt.Errorf("invalid webhook topic"))
	ts.webhooks.On("ListWebhooks", "").Return([]pubsub.WebhookInfo{{
		ID: "hook-id", Topic: "TRADE_FAILED", Endpoint: "http://hook",
		IsSecured: true,
	}}, nil)
	ts.webhooks.On("RemoveWebhook", "hook-id").Return(nil)

	rec := ts.do(t, http.MethodPost, "/v1/webhooks/", webhookRequest{
		Topic: "TRADE_FAILED", Endpoint: "http://hook", Secret: "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var id idResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&id))
	require.Equal(t, "hook-id", id.ID)

	rec = ts.do(t, http.MethodPost, "/v1/webhooks/", webhookRequest{
		Topic: "UNKNOWN", Endpoint: "http://hook",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/webhooks/", webhookRequest{
		Topic: "TRADE_FAILED",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/webhooks/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hooks []pubsub.WebhookInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hooks))
	require.Len(t, hooks, 1)

	rec = ts.do(t, http.MethodDelete, "/v1/webhooks/hook-id", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.wallet.On("DeriveReceiveAddress").Return("ert1address", nil)
	ts.wallet.On("Balance", "asset").Return(uint64(1000), uint64(400), nil)

	rec := ts.do(t, http.MethodPost, "/v1/wallet/address", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var addr addressResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&addr))
	require.Equal(t, "ert1address", addr.Address)

	rec = ts.do(t, http.MethodGet, "/v1/wallet/balance/asset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&balance))
	require.Equal(t, balanceResponse{
		Asset: "asset", Total: 1000, Locked: 400, Available: 600,
	}, balance)
}

func TestInvalidOpts(t *testing.T) {
	_, err := NewService(ServiceOpts{Address: ":0"})
	require.Error(t, err)
}
