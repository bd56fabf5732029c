package apiclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Breaker guards calls to the backend. It is shared by every client in the process.
type Breaker = gobreaker.CircuitBreaker[*http.Response]

// BreakerConfig holds the circuit breaker settings
type BreakerConfig struct {
	Name         string
	Timeout      time.Duration // how long the breaker stays open
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the settings used when none are configured
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "readit-api",
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "readit_api_circuit_breaker_state",
		Help: "State of the backend circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

// errBackendStatus marks a 5xx response as a breaker failure while keeping the response
var errBackendStatus = errors.New("backend returned 5xx")

// NewBreaker creates a breaker that trips when the failure ratio is reached
func NewBreaker(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
