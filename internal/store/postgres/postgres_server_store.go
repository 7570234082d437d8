package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
)

type postgresServerStore struct {
	db   *sql.DB
	opts store.Options
}

// NewPostgresServerStore creates a ServerStore backed by PostgreSQL.
func NewPostgresServerStore(db *sql.DB, opts store.Options) store.ServerStore {
	return &postgresServerStore{db: db, opts: opts}
}

func (s *postgresServerStore) Announce(ctx context.Context, server types.Server) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hostfire.servers (id, name, queues, worker_count, started_at, heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			queues = EXCLUDED.queues,
			worker_count = EXCLUDED.worker_count,
			heartbeat = EXCLUDED.heartbeat`,
		server.ID,
		server.Name,
		strings.Join(server.Queues, ","),
		server.WorkerCount,
		server.StartedAt.UTC(),
		server.Heartbeat.UTC(),
	)
	return err
}

func (s *postgresServerStore) Heartbeat(ctx context.Context, serverID string, now time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `UPDATE hostfire.servers SET heartbeat = $2 WHERE id = $1`, serverID, now.UTC())
	return err
}

func (s *postgresServerStore) Remove(ctx context.Context, serverID string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.servers WHERE id = $1`, serverID)
	return err
}

func (s *postgresServerStore) RemoveTimedOut(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.servers WHERE heartbeat < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *postgresServerStore) List(ctx context.Context) ([]types.Server, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, queues, worker_count, started_at, heartbeat
		FROM hostfire.servers
		ORDER BY started_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanServers(rows)
}

func scanServers(rows *sql.Rows) ([]types.Server, error) {
	var servers []types.Server
	for rows.Next() {
		var server types.Server
		var queues string
		if err := rows.Scan(&server.ID, &server.Name, &queues, &server.WorkerCount, &server.StartedAt, &server.Heartbeat); err != nil {
			return nil, err
		}
		if queues != "" {
			server.Queues = strings.Split(queues, ",")
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}
