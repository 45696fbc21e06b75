package circuitbreaker_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-tradeengine/pkg/circuitbreaker"
)

func TestShouldTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"no requests", gobreaker.Counts{}, false},
		{"too few requests", gobreaker.Counts{Requests: 10, TotalFailures: 10}, false},
		{"below ratio", gobreaker.Counts{Requests: 20, TotalFailures: 11}, false},
		{"at ratio", gobreaker.Counts{Requests: 20, TotalFailures: 12}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, circuitbreaker.ShouldTrip(
				tt.counts, circuitbreaker.DefaultMinRequests,
				circuitbreaker.DefaultFailureRatio,
			))
		})
	}
}

func TestBreakerTrips(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker("test")
	failure := errors.New("unreachable")

	for i := 0; i <= circuitbreaker.DefaultMinRequests; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, failure })
		require.ErrorIs(t, err, failure)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
