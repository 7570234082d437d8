package sqlserver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
)

type sqlServerServerStore struct {
	db   *sql.DB
	opts store.Options
}

// NewSQLServerServerStore creates a ServerStore backed by SQL Server.
func NewSQLServerServerStore(db *sql.DB, opts store.Options) store.ServerStore {
	return &sqlServerServerStore{db: db, opts: opts}
}

func (s *sqlServerServerStore) Announce(ctx context.Context, server types.Server) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		MERGE hostfire.servers WITH (HOLDLOCK) AS target
		USING (SELECT @p1 AS id) AS source
		ON target.id = source.id
		WHEN MATCHED THEN UPDATE SET queues = @p3, worker_count = @p4, heartbeat = @p6
		WHEN NOT MATCHED THEN
			INSERT (id, name, queues, worker_count, started_at, heartbeat)
			VALUES (@p1, @p2, @p3, @p4, @p5, @p6);`,
		server.ID,
		server.Name,
		strings.Join(server.Queues, ","),
		server.WorkerCount,
		server.StartedAt.UTC(),
		server.Heartbeat.UTC(),
	)
	return err
}

func (s *sqlServerServerStore) Heartbeat(ctx context.Context, serverID string, now time.Time) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `UPDATE hostfire.servers SET heartbeat = @p2 WHERE id = @p1`, serverID, now.UTC())
	return err
}

func (s *sqlServerServerStore) Remove(ctx context.Context, serverID string) error {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.servers WHERE id = @p1`, serverID)
	return err
}

func (s *sqlServerServerStore) RemoveTimedOut(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM hostfire.servers WHERE heartbeat < @p1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *sqlServerServerStore) List(ctx context.Context) ([]types.Server, error) {
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
