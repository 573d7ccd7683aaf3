package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the credential in a single-row table keyed by
// client id.
type PostgresStore struct {
	db       *pgxpool.Pool
	clientID string
}

// NewPostgresStore creates a Postgres-backed credential store.
func NewPostgresStore(db *pgxpool.Pool, clientID string) *PostgresStore {
	return &PostgresStore{
		db:       db,
		clientID: clientID,
	}
}

// EnsureSchema creates the credentials table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS broker_credentials (
			client_id     TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure credentials schema: %w", err)
	}
	return nil
}

// Load returns the stored credential for the configured client id, or nil
// when none has been saved yet.
func (s *PostgresStore) Load(ctx context.Context) (*Credential, error) {
	cred := &Credential{ClientID: s.clientID}

	err := s.db.QueryRow(ctx, `
		SELECT access_token, refresh_token, expires_at
		FROM broker_credentials
		WHERE client_id = $1
	`, s.clientID).Scan(&cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	return cred, nil
}

// Save upserts the credential row.
func (s *PostgresStore) Save(ctx context.Context, cred *Credential) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO broker_credentials (client_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			updated_at    = EXCLUDED.updated_at
	`, cred.ClientID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	return nil
}
