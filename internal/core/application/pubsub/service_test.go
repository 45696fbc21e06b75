package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Subscribe(topic, endpoint, secret string) (string, error) {
	args := m.Called(topic, endpoint, secret)
	return args.String(0), args.Error(1)
}

func (m *mockNotifier) Unsubscribe(topic, id string) error {
	return m.Called(topic, id).Error(0)
}

func (m *mockNotifier) ListSubscriptionsForTopic(topic string) []ports.Subscription {
	args := m.Called(topic)
	var res []ports.Subscription
	if a := args.Get(0); a != nil {
		res = a.([]ports.Subscription)
	}
	return res
}

func (m *mockNotifier) Publish(topic string, message string) error {
	return m.Called(topic, message).Error(0)
}

func (m *mockNotifier) Close() error {
	return m.Called().Error(0)
}

type subscription struct {
	id, topic, endpoint string
	secured             bool
}

func (s subscription) Topic() string    { return s.topic }
func (s subscription) Id() string       { return s.id }
func (s subscription) IsSecured() bool  { return s.secured }
func (s subscription) NotifyAt() string { return s.endpoint }

func TestWebhooks(t *testing.T) {
	ctx := context.Background()
	notifier := &mockNotifier{}
	notifier.On(
		"Subscribe", ports.TopicTradeFailed, "http://localhost/hook", "secret",
	).Return("hook-id", nil)
	notifier.On("Unsubscribe", "", "hook-id").Return(nil)
	notifier.On("ListSubscriptionsForTopic", "").Return([]ports.Subscription{
		subscription{"hook-id", ports.TopicTradeFailed, "http://localhost/hook", true},
	})

	svc := pubsub.NewService(notifier)

	id, err := svc.AddWebhook(
		ctx, ports.TopicTradeFailed, "http://localhost/hook", "secret",
	)
	require.NoError(t, err)
	require.Equal(t, "hook-id", id)

	_, err = svc.AddWebhook(ctx, "TRADE_SETTLED", "http://localhost/hook", "")
	require.Error(t, err)

	hooks, err := svc.ListWebhooks(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []pubsub.WebhookInfo{{
		ID:        "hook-id",
		Topic:     ports.TopicTradeFailed,
		Endpoint:  "http://localhost/hook",
		IsSecured: true,
	}}, hooks)

	_, err = svc.ListWebhooks(ctx, "unknown")
	require.Error(t, err)

	require.NoError(t, svc.RemoveWebhook(ctx, "hook-id"))
	notifier.AssertExpectations(t)
}

func TestPublishTradeEvent(t *testing.T) {
	trade := domain.Trade{
		ID:      "trade-id",
		Variant: domain.VariantSwap,
		Status:  domain.Status{Phase: domain.PhaseInit, Failed: true},
		Contract: domain.Contract{
			BaseAsset:   "base",
			QuoteAsset:  "quote",
			Amount:      1000,
			QuoteAmount: 2000,
		},
		ErrorMessage: "peer offline",
		SwapTx:       domain.TxRef{ID: "swap-txid"},
	}

	var message string
	notifier := &mockNotifier{}
	notifier.On("Publish", ports.TopicTradeFailed, mock.Anything).
		Run(func(args mock.Arguments) { message = args.String(1) }).
		Return(nil)

	svc := pubsub.NewService(notifier)
	err := svc.PublishTradeEvent(ports.TopicTradeFailed, trade)
	require.NoError(t, err)

	payload := struct {
		Event string `json:"event"`
		Trade struct {
			ID     string            `json:"id"`
			Failed bool              `json:"failed"`
			Error  string            `json:"error"`
			Txs    map[string]string `json:"txs"`
		} `json:"trade"`
	}{}
	require.NoError(t, json.Unmarshal([]byte(message), &payload))
	require.Equal(t, ports.TopicTradeFailed, payload.Event)
	require.Equal(t, "trade-id", payload.Trade.ID)
	require.True(t, payload.Trade.Failed)
	require.Equal(t, "peer offline", payload.Trade.Error)
	require.Equal(t, map[string]string{"swap": "swap-txid"}, payload.Trade.Txs)
}
