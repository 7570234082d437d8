package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/RezaEskandarii/hostfire/types"
	"golang.org/x/crypto/bcrypt"
)

type postgresUserStore struct {
	db   *sql.DB
	opts store.Options
}

// NewPostgresUserStore creates a new UserStore with a DB connection
func NewPostgresUserStore(db *sql.DB, opts store.Options) store.UserStore {
	return &postgresUserStore{db: db, opts: opts}
}

func (r *postgresUserStore) Create(ctx context.Context, username, password string) (int64, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO hostfire.users (username, password) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password
		RETURNING id`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, username, string(hashedPassword)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *postgresUserStore) Find(ctx context.Context, username, password string) (*types.User, error) {
	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT id, username, password FROM hostfire.users WHERE username = $1`
	user := &types.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // user not found
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil
	}
	user.Password = ""
	return user, nil
}

func (r *postgresUserStore) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	query := `SELECT id, username FROM hostfire.users WHERE username = $1`
	user := &types.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // user not found
		}
		return nil, err
	}
	return user, nil
}

func (r *postgresUserStore) Delete(ctx context.Context, username string) error {
	ctx, cancel := r.opts.WithCommandTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM hostfire.users WHERE username = $1`, username)
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
