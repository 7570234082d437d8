package sqlserver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"golang.org/x/crypto/bcrypt"
)

type sqlServerUserStore struct {
	db   *sql.DB
	opts store.Options
}

// NewSQLServerUserStore creates a UserStore backed by SQL Server.
func NewSQLServerUserStore(db *sql.DB, opts store.Options) store.UserStore {
	return &sqlServerUserStore{db: db, opts: opts}
}

func (r *sqlServerUserStore) Create(ctx context.Context, username, password string) (int64, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `
		MERGE hostfire.users WITH (HOLDLOCK) AS target
		USING (SELECT @p1 AS username) AS source
		ON target.username = source.username
		WHEN MATCHED THEN UPDATE SET password = @p2
		WHEN NOT MATCHED THEN INSERT (username, password) VALUES (@p1, @p2)
		OUTPUT INSERTED.id;`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, username, string(hashedPassword)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *sqlServerUserStore) Find(ctx context.Context, username, password string) (*types.User, error) {
	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	user := &types.User{}
	err := r.db.QueryRowContext(ctx, `SELECT id, username, password FROM hostfire.users WHERE username = @p1`, username).
		Scan(&user.ID, &user.Username, &user.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil
	}
	user.Password = ""
	return user, nil
}

func (r *sqlServerUserStore) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	user := &types.User{}
	err := r.db.QueryRowContext(ctx, `SELECT id, username FROM hostfire.users WHERE username = @p1`, username).
		Scan(&user.ID, &user.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (r *sqlServerUserStore) Delete(ctx context.Context, username string) error {
	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM hostfire.users WHERE username = @p1`, username)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return errors.New("no user found to delete")
	}
	return nil
}
