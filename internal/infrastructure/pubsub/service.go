package pubsub

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/pkg/circuitbreaker"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/sync/errgroup"
)

const defaultRequestTimeout = 15 * time.Second

var (
	ErrNullStore            = errors.New("store must not be null")
	ErrSubscriptionNotFound = errors.New("webhook not found")
)

type service struct {
	store      *badgerhold.Store
	httpClient *client
	cb         *gobreaker.CircuitBreaker
}

// NewService returns a Notifier that persists its subscriptions in the given
// store and delivers every message with a POST request to the subscribed
// endpoints. The store is closed by Close.
func NewService(
	store *badgerhold.Store, requestTimeout time.Duration,
) (ports.Notifier, error) {
	if store == nil {
		return nil, ErrNullStore
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &service{
		store:      store,
		httpClient: newHTTPClient(requestTimeout),
		cb:         circuitbreaker.NewCircuitBreaker("webhooks"),
	}, nil
}

func (ws *service) Subscribe(topic, endpoint, secret string) (string, error) {
	sub, err := NewSubscription(topic, endpoint, secret)
	if err != nil {
		return "", err
	}

	if err := ws.store.Insert(sub.ID, *sub); err != nil {
		if err == badgerhold.ErrKeyExists {
			return sub.ID, nil
		}
		return "", err
	}
	return sub.ID, nil
}

func (ws *service) Unsubscribe(_, id string) error {
	if err := ws.store.Delete(id, Subscription{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return ErrSubscriptionNotFound
		}
		return err
	}
	return nil
}

func (ws *service) ListSubscriptionsForTopic(topic string) []ports.Subscription {
	return ws.listSubscriptionsForTopic(topic).toPortable()
}

func (ws *service) Publish(topic string, message string) error {
	subs := ws.listSubscriptionsForTopic(topic)

	eg := &errgroup.Group{}
	for i := range subs {
		sub := subs[i]
		eg.Go(func() error { return ws.doRequest(sub, message) })
	}
	return eg.Wait()
}

func (ws *service) Close() error {
	ws.httpClient.CloseIdleConnections()
	return ws.store.Close()
}

// listSubscriptionsForTopic returns those for the given topic followed by
// those for any topic. An empty topic returns all subscriptions.
func (ws *service) listSubscriptionsForTopic(topic string) subscriptions {
	if topic == "" {
		return ws.findSubscriptions(nil)
	}

	subs := ws.findSubscriptions(
		badgerhold.Where("Event").Eq(topic).Index("Event"),
	)
	if topic != ports.AnyTopic {
		subsForAnyTopic := ws.findSubscriptions(
			badgerhold.Where("Event").Eq(ports.AnyTopic).Index("Event"),
		)
		subs = append(subs, subsForAnyTopic...)
	}
	return subs
}

func (ws *service) findSubscriptions(query *badgerhold.Query) subscriptions {
	var subs []Subscription
	if err := ws.store.Find(&subs, query); err != nil {
		return nil
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].ID < subs[j].ID
	})
	return subs
}

func (ws *service) doRequest(sub Subscription, payload string) error {
	_, err := ws.cb.Execute(func() (interface{}, error) {
		headers := map[string]string{
			"Content-Type": "application/json",
		}
		if sub.IsSecured() {
			token := jwt.New(jwt.SigningMethodHS256)
			secret := []byte(sub.Secret)
			tokenString, _ := token.SignedString(secret)
			headers["Authorization"] = fmt.Sprintf("Bearer %s", tokenString)
		}

		status, resp, err := ws.httpClient.post(sub.Endpoint, payload, headers)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("%s: %s", sub.Endpoint, resp)
		}
		return nil, nil
	})

	return err
}
