package postgres

import (
	"context"
	"errors"
	"time"

	"dinein/ordering-service/internal/retry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var ErrConnect = errors.New("failed to open database connection")

type ConnectOptions struct {
	DSN           string
	MaxConns      int32
	Attempts      int
	RetryInterval time.Duration
	Logger        logrus.FieldLogger
}

// Connect opens a pool and pings it, retrying with a growing delay so the
// service can start before the database is ready.
func Connect(ctx context.Context, options ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(options.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}
	if options.MaxConns > 0 {
		cfg.MaxConns = options.MaxConns
	}
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	policy := retry.Policy{
		MaxAttempts: options.Attempts,
		Delay:       options.RetryInterval,
		Exponential: true,
		Retryable:   func(error) bool { return true },
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"wait":    wait.String(),
			}).Warn("database connection failed, retrying")
		},
	}

	pool, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}
	return pool, nil
}

// Healthcheck pings the pool; it backs the readiness endpoint.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}
