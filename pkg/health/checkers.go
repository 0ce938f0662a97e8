package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the store unhealthy when a ping fails.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// PoolStats reports how many pooled connections are checked out and the
// pool size.
type PoolStats func() (acquired, size int32)

// PoolSaturationCheck fails while every pooled connection is checked out,
// which means new requests would queue behind slow queries.
func PoolSaturationCheck(stats PoolStats) CheckFunc {
	return func(context.Context) error {
		acquired, size := stats()
		if size > 0 && acquired >= size {
			return errors.Errorf("all %d connections in use", size)
		}
		return nil
	}
}

// GoroutineCheck fails when the goroutine count exceeds limit, which points
// at a leak.
func GoroutineCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}
