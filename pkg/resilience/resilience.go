package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sif-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

const (
	failureThreshold = 3
	cooldownPeriod   = 10 * time.Second
	maxHalfOpenTries = 3
)

// PushResilience wraps push transport calls with retry and a circuit breaker.
// Repeated delivery failures open the circuit so a flapping provider does not
// stall the notification fan-out path.
type PushResilience struct {
	mu                  sync.RWMutex
	state               CircuitBreakerState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenAttempts    int
	metrics             *pushMetrics
}

// pushMetrics tracks push transport operation metrics
type pushMetrics struct {
	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	circuitBreakerState prometheus.Gauge
}

var (
	pushMetricsInstance *pushMetrics
	pushMetricsOnce     sync.Once
)

func init() {
	pushMetricsOnce.Do(func() {
		pushMetricsInstance = &pushMetrics{
			requestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "push_transport_requests_total",
					Help: "Total number of push transport requests",
				},
				[]string{"operation", "status"},
			),
			errorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "push_transport_errors_total",
					Help: "Total number of push transport errors",
				},
				[]string{"operation", "error_type"},
			),
			circuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "push_transport_circuit_breaker_state",
				Help: "State of push transport circuit breaker (0=closed, 1=half_open, 2=open)",
			}),
		}
		prometheus.MustRegister(pushMetricsInstance.requestsTotal)
		prometheus.MustRegister(pushMetricsInstance.errorsTotal)
		prometheus.MustRegister(pushMetricsInstance.circuitBreakerState)
	})
}

// NewPushResilience creates a push transport resilience wrapper
func NewPushResilience() *PushResilience {
	return &PushResilience{
		state:   CircuitBreakerClosed,
		metrics: pushMetricsInstance,
	}
}

// Execute runs a push transport operation with retry, timeout, and circuit breaker
func (r *PushResilience) Execute(
	ctx context.Context,
	operation string,
	fn func() error,
) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var lastErr error
	var attempts int
	initialInterval := 100 * time.Millisecond
	maxInterval := 2 * time.Second
	maxElapsedTime := 10 * time.Second
	startTime := time.Now()

	for time.Since(startTime) < maxElapsedTime {
		attempts++

		r.mu.RLock()
		state := r.state
		halfOpenAttempts := r.halfOpenAttempts
		r.mu.RUnlock()

		if state == CircuitBreakerOpen {
			r.mu.Lock()
			if time.Since(r.lastFailureTime) > cooldownPeriod {
				r.state = CircuitBreakerHalfOpen
				r.halfOpenAttempts = 0
				r.metrics.circuitBreakerState.Set(1)
				logger.Warn("Push circuit breaker HALF-OPEN after cooldown",
					zap.String("operation", operation),
				)
				r.mu.Unlock()
			} else {
				r.mu.Unlock()
				r.metrics.requestsTotal.WithLabelValues(operation, "circuit_breaker_open").Inc()
				return fmt.Errorf("push transport temporarily unavailable (circuit breaker open)")
			}
		}

		if state == CircuitBreakerHalfOpen {
			halfOpenAttempts++
			if halfOpenAttempts > maxHalfOpenTries {
				r.mu.Lock()
				r.state = CircuitBreakerClosed
				r.consecutiveFailures = 0
				r.halfOpenAttempts = 0
				r.lastFailureTime = time.Time{}
				r.mu.Unlock()
				logger.Info("Push circuit breaker CLOSED - recovered from half-open state",
					zap.String("operation", operation),
				)
				r.metrics.circuitBreakerState.Set(0)
			} else {
				r.mu.Lock()
				r.halfOpenAttempts = halfOpenAttempts
				r.mu.Unlock()
			}
		}

		if attempts > 1 {
			logger.Warn("Push transport retry",
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
				zap.Error(lastErr),
			)
		}

		err := fn()
		lastErr = err

		if err == nil {
			r.mu.Lock()
			if r.state != CircuitBreakerClosed {
				r.state = CircuitBreakerClosed
				r.consecutiveFailures = 0
				r.halfOpenAttempts = 0
				r.lastFailureTime = time.Time{}
				r.metrics.circuitBreakerState.Set(0)
			}
			r.mu.Unlock()

			r.metrics.requestsTotal.WithLabelValues(operation, "success").Inc()
			return nil
		}

		r.mu.Lock()
		r.consecutiveFailures++
		r.lastFailureTime = time.Now()

		r.metrics.errorsTotal.WithLabelValues(operation, classifyError(err)).Inc()
		r.metrics.requestsTotal.WithLabelValues(operation, "failure").Inc()

		if r.consecutiveFailures >= failureThreshold {
			r.state = CircuitBreakerOpen
			r.metrics.circuitBreakerState.Set(2)
			logger.Error("Push circuit breaker OPEN - too many consecutive failures",
				zap.String("operation", operation),
				zap.Int("consecutive_failures", r.consecutiveFailures),
			)
		}
		r.mu.Unlock()

		backoff := time.Duration(float64(attempts) * float64(initialInterval))
		if backoff > maxInterval {
			backoff = maxInterval
		}

		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("push transport operation timed out: %w", lastErr)
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("push transport operation failed after %d attempts: %w", attempts, lastErr)
}

// GetCircuitBreakerState returns the current circuit breaker state
func (r *PushResilience) GetCircuitBreakerState() CircuitBreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "unregistered") || strings.Contains(errMsg, "invalid token"):
		return "invalid_token"
	case strings.Contains(errMsg, "circuit breaker"):
		return "circuit_breaker"
	default:
		return "unknown"
	}
}
