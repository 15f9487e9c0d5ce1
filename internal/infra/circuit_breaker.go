package infra

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a call is rejected without reaching the
// upstream because the breaker is open or saturated in half-open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds tunable parameters.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to trip open
	MaxRequests      uint32        // trial requests allowed while half-open
	OpenTimeout      time.Duration // how long to stay open before a trial request
}

// DefaultCBConfig returns the defaults used for the pricing provider.
func DefaultCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		MaxRequests:      2,
		OpenTimeout:      60 * time.Second,
	}
}

// CircuitBreaker wraps gobreaker with zerolog state-change logging.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	threshold := cfg.FailureThreshold
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})}
}

// Execute runs fn through the breaker. Open and too-many-requests rejections
// are reported as ErrCircuitOpen.
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns "closed", "half-open" or "open" for health reporting.
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}
