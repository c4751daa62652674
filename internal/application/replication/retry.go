package replication

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/erp/salesync/internal/domain/replication"
)

// RetryPolicy bounds the retries of remote calls that are safe to repeat
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 200 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
		MaxRetries:      3,
	}
}

// NoRetry performs every call exactly once
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxRetries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxElapsedTime > 0 {
		exp.MaxElapsedTime = p.MaxElapsedTime
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

// retryable marks every failure other than a connectivity failure as permanent
func retryable(err error) error {
	if err == nil || errors.Is(err, replication.ErrGatewayUnreachable) {
		return err
	}
	return backoff.Permanent(err)
}

func retryWithData[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		return v, retryable(err)
	}, p.backOff(ctx))
}
