package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"report-renderer/internal/tokens"
)

const (
	schemaDDL = `CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		scope JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	indexDDL    = `CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at);`
	selectQuery = `SELECT token, rate_limit, scope FROM tokens;`
)

// VerifySchema creates the tokens table and index when missing.
func VerifySchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create tokens table: %w", err)
	}
	if _, err := db.ExecContext(ctx, indexDDL); err != nil {
		return fmt.Errorf("create tokens index: %w", err)
	}
	return nil
}

// TokenRepository implements tokens.Repository on Postgres.
type TokenRepository struct {
	DB  *DB
	DSN string
}

// NewTokenRepository returns a repository reading from dsn.
func NewTokenRepository(db *DB, dsn string) *TokenRepository {
	return &TokenRepository{DB: db, DSN: dsn}
}

// LoadTokens ensures the schema and reads every token.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]tokens.Entry, error) {
	db, err := r.DB.Get(r.DSN)
	if err != nil {
		return nil, err
	}
	if err := VerifySchema(db); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, selectQuery)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tokens.Entry)
	for rows.Next() {
		var (
			token    string
			limit    int
			rawScope []byte
		)
		if err := rows.Scan(&token, &limit, &rawScope); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		scope, err := decodeScope(rawScope)
		if err != nil {
			return nil, fmt.Errorf("decode scope of token: %w", err)
		}
		out[token] = tokens.Entry{RateLimit: limit, Scope: scope}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeScope accepts either {"render": true} or ["render", "validate"].
// NULL and JSON null leave the token unrestricted.
func decodeScope(raw []byte) (tokens.Scope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, err
		}
		scope := make(tokens.Scope, len(names))
		for _, n := range names {
			scope[n] = true
		}
		return scope, nil
	}
	var scope tokens.Scope
	if err := json.Unmarshal(raw, &scope); err != nil {
		return nil, err
	}
	return scope, nil
}
