// Package storage picks and opens the task store for a sift binary.
package storage

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/postgres"
	"github.com/linnemanlabs/sift/internal/triage"
	"github.com/linnemanlabs/sift/internal/triage/memstore"
	"github.com/linnemanlabs/sift/internal/triage/pgstore"
)

// Open returns the postgres store when c.DatabaseURL is set and the
// in-memory store otherwise. The returned close function is never nil.
func Open(ctx context.Context, L log.Logger, c cfg.Triage) (triage.Store, func(), error) {
	if c.DatabaseURL == "" {
		L.Info(ctx, "using in-memory store (no database-url configured)")
		return memstore.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, c.DatabaseURL, postgres.PoolOptions{
		MaxConns:  int32(c.DBMaxConns), //nolint:gosec // G115: bounded to 0..1000 by Validate
		SlowQuery: c.SlowQuery(),
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("postgres pool: %w", err)
	}
	st, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("pgstore init: %w", err)
	}
	L.Info(ctx, "using postgres store", "max_conns", pool.Config().MaxConns)
	return st, pool.Close, nil
}
