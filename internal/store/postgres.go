package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV is a general store on Postgres, namespaced per device so that
// several installations can share one table.
type PostgresKV struct {
	db        *pgxpool.Pool
	namespace string
}

func NewPostgresKV(db *pgxpool.Pool, namespace string) *PostgresKV {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		ns = "default"
	}
	return &PostgresKV{db: db, namespace: ns}
}

// EnsureSchema creates the device_kv table (idempotent).
func (p *PostgresKV) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS device_kv (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure device_kv table: %w", err)
	}
	return nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(ctx, `SELECT value FROM device_kv WHERE namespace = $1 AND key = $2`, p.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (p *PostgresKV) Set(ctx context.Context, key, value string) error {
	return p.MultiSet(ctx, map[string]string{key: value})
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	return p.MultiDelete(ctx, []string{key})
}

func (p *PostgresKV) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := p.db.Query(ctx, `SELECT key, value FROM device_kv WHERE namespace = $1 AND key = ANY($2)`, p.namespace, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (p *PostgresKV) MultiSet(ctx context.Context, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for k, v := range pairs {
		batch.Queue(`
			INSERT INTO device_kv (namespace, key, value, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (namespace, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, p.namespace, k, v)
	}
	br := p.db.SendBatch(ctx, batch)
	defer br.Close()

	for range pairs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresKV) MultiDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := p.db.Exec(ctx, `DELETE FROM device_kv WHERE namespace = $1 AND key = ANY($2)`, p.namespace, keys)
	return err
}
