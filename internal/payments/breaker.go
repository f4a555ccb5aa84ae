package payments

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const (
	defaultCallTimeout     = 10 * time.Second
	defaultOpenTimeout     = 30 * time.Second
	defaultFailureTrip     = 5
	defaultHalfOpenRequest = 1
)

// BreakerSettings tunes the circuit breaker wrapped around one gateway.
type BreakerSettings struct {
	// CallTimeout bounds every provider call.
	CallTimeout time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

type breakerMetrics interface {
	IncCall(gateway, operation, outcome string)
	SetBreakerState(gateway string, state int)
}

type breakerGateway struct {
	inner   Gateway
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	metrics breakerMetrics
}

// WithBreaker wraps gateway so provider outages fail fast instead of piling
// up requests. Business errors (validation, declined cards) do not count as
// failures.
func WithBreaker(gateway Gateway, settings BreakerSettings, metrics breakerMetrics, logg *logger.Logger) Gateway {
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = defaultCallTimeout
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = defaultOpenTimeout
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = defaultFailureTrip
	}
	name := gateway.Name().String()

	g := &breakerGateway{
		inner:   gateway,
		timeout: settings.CallTimeout,
		metrics: metrics,
	}
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: defaultHalfOpenRequest,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsOutage(err)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.SetBreakerState(name, int(to))
			}
			if logg != nil {
				ctx := logg.WithFields(context.Background(), map[string]any{
					"gateway": name,
					"from":    from.String(),
					"to":      to.String(),
				})
				logg.Warn(ctx, "payment gateway breaker state changed")
			}
		},
	})
	if metrics != nil {
		metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	}
	return g
}

func (g *breakerGateway) Name() enums.PaymentMethod {
	return g.inner.Name()
}

func (g *breakerGateway) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	return call(g, ctx, "create", func(ctx context.Context) (*CreateResult, error) {
		return g.inner.Create(ctx, req)
	})
}

func (g *breakerGateway) Execute(ctx context.Context, req ExecuteRequest) (*PaymentResult, error) {
	return call(g, ctx, "execute", func(ctx context.Context) (*PaymentResult, error) {
		return g.inner.Execute(ctx, req)
	})
}

func (g *breakerGateway) Status(ctx context.Context, paymentID string) (*PaymentResult, error) {
	return call(g, ctx, "status", func(ctx context.Context) (*PaymentResult, error) {
		return g.inner.Status(ctx, paymentID)
	})
}

func call[T any](g *breakerGateway, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	out, err := g.cb.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	name := g.inner.Name().String()
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment provider temporarily unavailable").
				WithDetails(map[string]any{"gateway": name})
		} else if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment provider timed out")
		}
		g.record(name, op, outcome)
		return zero, err
	}
	g.record(name, op, "ok")
	typed, ok := out.(T)
	if !ok {
		return zero, pkgerrors.New(pkgerrors.CodeInternal, "unexpected gateway result")
	}
	return typed, nil
}

func (g *breakerGateway) record(name, op, outcome string) {
	if g.metrics != nil {
		g.metrics.IncCall(name, op, outcome)
	}
}

// countsAsOutage reports whether err says the provider is unhealthy rather
// than that the request itself was refused.
func countsAsOutage(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeConflict, pkgerrors.CodeIdempotency:
		return false
	default:
		return true
	}
}
