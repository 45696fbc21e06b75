package pubsub_test

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
	"github.com/tdex-network/tdex-tradeengine/internal/infrastructure/pubsub"
	dbbadger "github.com/tdex-network/tdex-tradeengine/internal/infrastructure/storage/db/badger"
)

var testMessage = `{"event":"TRADE_COMPLETED","trade":{"id":"e3c7b2e8","variant":"SWAP","phase":"SWAP_TX_CONFIRMED"}}`

func TestPubSubService(t *testing.T) {
	secret := randomSecret()
	server, received := newTestWebServer(t, secret)
	t.Cleanup(server.Close)

	pubsubSvc := newTestService(t)

	testSubs := []struct {
		topic    string
		endpoint string
		secret   string
	}{
		{ports.TopicTradeCompleted, server.URL + "/completed", secret},
		{ports.TopicTradeCompleted, server.URL + "/completed", secret},
		{ports.TopicTradeFailed, server.URL + "/failed", ""},
		{ports.AnyTopic, server.URL + "/all", ""},
	}
	for _, sub := range testSubs {
		subID, err := pubsubSvc.Subscribe(sub.topic, sub.endpoint, sub.secret)
		require.NoError(t, err)
		require.NotEmpty(t, subID)
	}

	subs := pubsubSvc.ListSubscriptionsForTopic(ports.TopicTradeCompleted)
	require.Len(t, subs, 3)
	for _, sub := range subs[:2] {
		require.True(t, sub.IsSecured())
		require.Equal(t, ports.TopicTradeCompleted, sub.Topic())
	}
	require.Equal(t, ports.AnyTopic, subs[2].Topic())
	require.False(t, subs[2].IsSecured())

	require.Len(t, pubsubSvc.ListSubscriptionsForTopic(""), len(testSubs))
	require.Len(t, pubsubSvc.ListSubscriptionsForTopic(ports.AnyTopic), 1)

	err := pubsubSvc.Publish(ports.TopicTradeCompleted, testMessage)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"/completed": 2, "/all": 1}, received.counts())

	for _, s := range subs {
		err := pubsubSvc.Unsubscribe(s.Topic(), s.Id())
		require.NoError(t, err)
	}
	require.Len(t, pubsubSvc.ListSubscriptionsForTopic(ports.TopicTradeCompleted), 0)
	require.Len(t, pubsubSvc.ListSubscriptionsForTopic(ports.TopicTradeFailed), 1)

	err = pubsubSvc.Unsubscribe("", subs[0].Id())
	require.ErrorIs(t, err, pubsub.ErrSubscriptionNotFound)

	// Nothing to invoke.
	err = pubsubSvc.Publish(ports.TopicTradeUpdated, testMessage)
	require.NoError(t, err)
}

func TestPubSubServiceFailure(t *testing.T) {
	t.Run("invalid subscription", func(t *testing.T) {
		pubsubSvc := newTestService(t)

		_, err := pubsubSvc.Subscribe("", "http://localhost:8080", "")
		require.Error(t, err)

		_, err = pubsubSvc.Subscribe(ports.AnyTopic, "not an url", "")
		require.Error(t, err)
	})

	t.Run("endpoint error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "internal error", http.StatusInternalServerError)
			},
		))
		t.Cleanup(server.Close)

		pubsubSvc := newTestService(t)
		_, err := pubsubSvc.Subscribe(ports.AnyTopic, server.URL, "")
		require.NoError(t, err)

		err = pubsubSvc.Publish(ports.TopicTradeFailed, testMessage)
		require.Error(t, err)
	})
}

func newTestService(t *testing.T) ports.Notifier {
	store, err := dbbadger.NewStore("", nil)
	require.NoError(t, err)

	svc, err := pubsub.NewService(store, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		//nolint
		svc.Close()
	})
	return svc
}

type requestCounter struct {
	lock sync.Mutex
	hits map[string]int
}

func (c *requestCounter) add(path string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.hits[path]++
}

func (c *requestCounter) counts() map[string]int {
	c.lock.Lock()
	defer c.lock.Unlock()
	counts := make(map[string]int, len(c.hits))
	for k, v := range c.hits {
		counts[k] = v
	}
	return counts
}

func newTestWebServer(
	t *testing.T, secret string,
) (*httptest.Server, *requestCounter) {
	counter := &requestCounter{hits: make(map[string]int)}
	handleFn := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Bad method", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Content-Type") == "" {
			http.Error(w, "Missing Content-Type header", http.StatusUnsupportedMediaType)
			return
		}
		if r.URL.Path == "/completed" {
			auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			_, err := jwt.Parse(auth, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}

		defer r.Body.Close()
		payload, _ := io.ReadAll(r.Body)
		t.Logf("%s %s", r.URL.Path, payload)

		counter.add(r.URL.Path)
		fmt.Fprintf(w, "Done")
	}
	return httptest.NewServer(http.HandlerFunc(handleFn)), counter
}

func randomSecret() string {
	b := make([]byte, 32)
	//nolint
	rand.Read(b)
	return hex.EncodeToString(b)
}
