package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

var topics = map[string]struct{}{
	ports.AnyTopic:            {},
	ports.TopicTradeUpdated:   {},
	ports.TopicTradeCompleted: {},
	ports.TopicTradeFailed:    {},
}

// WebhookInfo describes a registered webhook. The secret is never exposed.
type WebhookInfo struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Endpoint  string `json:"endpoint"`
	IsSecured bool   `json:"is_secured"`
}

// Service manages webhooks and publishes trade events to them. It satisfies
// the protocol's EventPublisher.
type Service struct {
	pubsub ports.Notifier
}

func NewService(pubsub ports.Notifier) *Service {
	return &Service{pubsub}
}

func (s *Service) AddWebhook(
	_ context.Context, topic, endpoint, secret string,
) (string, error) {
	if _, ok := topics[topic]; !ok {
		return "", fmt.Errorf("invalid webhook topic %q", topic)
	}
	return s.pubsub.Subscribe(topic, endpoint, secret)
}

func (s *Service) RemoveWebhook(_ context.Context, id string) error {
	return s.pubsub.Unsubscribe("", id)
}

// ListWebhooks returns the webhooks for the given topic, or all of them if
// topic is empty.
func (s *Service) ListWebhooks(
	_ context.Context, topic string,
) ([]WebhookInfo, error) {
	if _, ok := topics[topic]; topic != "" && !ok {
		return nil, fmt.Errorf("invalid webhook topic %q", topic)
	}
	subs := s.pubsub.ListSubscriptionsForTopic(topic)
	webhooks := make([]WebhookInfo, 0, len(subs))
	for _, sub := range subs {
		webhooks = append(webhooks, WebhookInfo{
			ID:        sub.Id(),
			Topic:     sub.Topic(),
			Endpoint:  sub.NotifyAt(),
			IsSecured: sub.IsSecured(),
		})
	}
	return webhooks, nil
}

func (s *Service) PublishTradeEvent(topic string, trade domain.Trade) error {
	payload := map[string]interface{}{
		"event": topic,
		"trade": getTradePayload(trade),
	}
	message, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.pubsub.Publish(topic, string(message))
}

func (s *Service) Close() {
	if err := s.pubsub.Close(); err != nil {
		log.WithError(err).Warn("failed to close pubsub")
	}
}
