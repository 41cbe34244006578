package tarantool

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker is the subset of gobreaker used by Pool.Exec.
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
}

// NewCircuitBreaker creates a breaker suitable for PoolConfig.Breaker:
// it opens when at least 3 requests were seen in the interval and 60%
// of them failed.
func NewCircuitBreaker(name string, maxRequests uint32, interval, timeout time.Duration) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}
