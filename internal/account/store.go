package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is an account row including the credential hash. The hash
// never leaves this package's callers except for bcrypt comparison at
// login.
type Record struct {
	Account
	PasswordHash string
	CreatedAt    time.Time
}

// Store persists accounts in Postgres. Schema:
//
//	CREATE TABLE accounts (
//	    uid           uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
//	    email         text NOT NULL UNIQUE,
//	    display_name  text NOT NULL,
//	    password_hash text NOT NULL,
//	    created_at    timestamptz NOT NULL DEFAULT now()
//	);
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, email, displayName, passwordHash string) (*Record, error) {
	query := `
		INSERT INTO accounts (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING uid, email, display_name, password_hash, created_at`

	var r Record
	err := s.pool.QueryRow(ctx, query, email, displayName, passwordHash).Scan(
		&r.UID,
		&r.Email,
		&r.DisplayName,
		&r.PasswordHash,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &r, nil
}

// GetByEmail returns nil, nil when no account has that email, so the
// caller can give the same "invalid email or password" answer for
// missing accounts and wrong passwords alike.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Record, error) {
	query := `
		SELECT uid, email, display_name, password_hash, created_at
		FROM accounts
		WHERE email = $1`

	var r Record
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&r.UID,
		&r.Email,
		&r.DisplayName,
		&r.PasswordHash,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return &r, nil
}

func (s *Store) GetByUID(ctx context.Context, uid string) (*Record, error) {
	query := `
		SELECT uid, email, display_name, password_hash, created_at
		FROM accounts
		WHERE uid = $1`

	var r Record
	err := s.pool.QueryRow(ctx, query, uid).Scan(
		&r.UID,
		&r.Email,
		&r.DisplayName,
		&r.PasswordHash,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by uid: %w", err)
	}
	return &r, nil
}
