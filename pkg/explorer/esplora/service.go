package esplora

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-tradeengine/pkg/circuitbreaker"
	"github.com/tdex-network/tdex-tradeengine/pkg/explorer"
	"go.uber.org/ratelimit"
)

const (
	// DefaultRequestTimeout bounds every request to the esplora API.
	DefaultRequestTimeout = 15 * time.Second
	// DefaultRequestsPerSecond is the max rate of requests to the API.
	DefaultRequestsPerSecond = 10
)

type esplora struct {
	apiURL  string
	client  *http.Client
	limiter ratelimit.Limiter
	cb      *gobreaker.CircuitBreaker
}

// NewService returns a new esplora service as an explorer.Service interface.
// A non positive requestTimeout or maxRequestsPerSecond means default value.
func NewService(
	apiURL string, requestTimeout time.Duration, maxRequestsPerSecond int,
) (explorer.Service, error) {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if maxRequestsPerSecond <= 0 {
		maxRequestsPerSecond = DefaultRequestsPerSecond
	}
	service := &esplora{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		limiter: ratelimit.New(maxRequestsPerSecond),
		cb:      circuitbreaker.NewCircuitBreaker("esplora"),
	}

	if err := service.healthCheck(); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

func (e *esplora) healthCheck() error {
	_, err := e.GetBlockHeight()
	return err
}

type response struct {
	status int
	body   string
}

// request is rate limited and goes through the circuit breaker. Only
// transport errors and 5xx responses count as failures for the breaker.
func (e *esplora) request(
	method, path, body string, headers map[string]string,
) (int, string, error) {
	e.limiter.Take()

	iResp, err := e.cb.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if body != "" {
			reqBody = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, e.apiURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		r := response{resp.StatusCode, strings.TrimSpace(string(buf))}
		if r.status >= http.StatusInternalServerError {
			return r, fmt.Errorf("esplora: %d %s", r.status, r.body)
		}
		return r, nil
	})
	if err != nil {
		return 0, "", err
	}
	r := iResp.(response)
	return r.status, r.body, nil
}

func (e *esplora) get(path string) (int, string, error) {
	return e.request(http.MethodGet, path, "", nil)
}
