package circuitbreaker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	// DefaultMinRequests is the number of requests a breaker must count before
	// it can trip.
	DefaultMinRequests = 10
	// DefaultFailureRatio is the ratio of failed requests that trips a breaker.
	DefaultFailureRatio = 0.6
	// DefaultOpenTimeout is how long a tripped breaker rejects requests before
	// letting a trial request through.
	DefaultOpenTimeout = 30 * time.Second
)

// NewCircuitBreaker returns a breaker that trips once it counted more than
// DefaultMinRequests requests, of which at least DefaultFailureRatio failed.
// Every change of state is logged with the given name.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: DefaultOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return ShouldTrip(counts, DefaultMinRequests, DefaultFailureRatio)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			if to == gobreaker.StateOpen {
				logger.Warn("circuit breaker tripped")
				return
			}
			logger.Debug("circuit breaker changed state")
		},
	})
}

// ShouldTrip returns whether the given counts exceed the thresholds.
func ShouldTrip(counts gobreaker.Counts, minRequests int, ratio float64) bool {
	if counts.Requests == 0 || int(counts.Requests) <= minRequests {
		return false
	}
	failures := float64(counts.TotalFailures) / float64(counts.Requests)
	return failures >= ratio
}
