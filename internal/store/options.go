package store

import (
	"context"
	"database/sql"
	"time"
)

// Options controls how store implementations talk to the database.
type Options struct {
	// CommandTimeout bounds every statement or transaction. Zero disables it.
	CommandTimeout time.Duration
	// UseRecommendedIsolationLevel runs transactions as READ COMMITTED
	// instead of the driver default.
	UseRecommendedIsolationLevel bool
}

// WithCommandTimeout derives a context bounded by the command timeout.
func (o Options) WithCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.CommandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.CommandTimeout)
}

// TxOptions returns the options transactions are started with.
func (o Options) TxOptions() *sql.TxOptions {
	if !o.UseRecommendedIsolationLevel {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}
