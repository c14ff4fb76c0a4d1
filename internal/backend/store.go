package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgvectorpgx "github.com/pgvector/pgvector-go/pgx"
)

// collectionsTable registers every collection with the table backing it.
// Created by the schema migrations.
const collectionsTable = "quarry_collections"

// tablePrefix namespaces collection tables inside the database.
const tablePrefix = "qd_"

var identPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// pgStore implements Store over a pgx connection pool. One table per
// collection keeps vector indexes small and makes collection deletion a
// single DROP.
type pgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func newPGStore(ctx context.Context, connString string, logger *slog.Logger) (*pgStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvectorpgx.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return &pgStore{pool: pool, logger: logger}, nil
}

func (s *pgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *pgStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	table, err := collectionTable(name)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Vector width is part of the DDL, so it is fixed at creation time.
	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table, dims)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}

	registerSQL := fmt.Sprintf(`INSERT INTO %s (name, table_name, dimensions)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`, collectionsTable)
	if _, err := tx.Exec(ctx, registerSQL, name, table, dims); err != nil {
		return fmt.Errorf("registering collection %q: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing collection setup: %w", err)
	}
	return nil
}

func (s *pgStore) Upsert(ctx context.Context, collection string, records []Record) error {
	table, err := collectionTable(collection)
	if err != nil {
		return err
	}

	upsertSQL := fmt.Sprintf(`INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload`, table)

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshaling payload for %q: %w", rec.ID, err)
		}
		batch.Queue(upsertSQL, rec.ID, pgvector.NewVector(rec.Vector), payload)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting into %s: %w", table, mapMissingTable(err))
		}
	}
	return nil
}

func (s *pgStore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]QueryRow, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}

	querySQL := fmt.Sprintf(`SELECT id, payload, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, table)

	rows, err := s.pool.Query(ctx, querySQL, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, mapMissingTable(err)
	}
	defer rows.Close()

	var out []QueryRow
	for rows.Next() {
		var (
			row QueryRow
			raw []byte
		)
		if err := rows.Scan(&row.ID, &raw, &row.Score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if err := json.Unmarshal(raw, &row.Payload); err != nil {
			s.logger.Warn("skipping row with corrupt payload", "id", row.ID, "error", err)
			continue
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapMissingTable(err)
	}
	return out, nil
}

func (s *pgStore) Collections(ctx context.Context) ([]string, error) {
	listSQL := fmt.Sprintf(`SELECT name FROM %s ORDER BY name`, collectionsTable)
	rows, err := s.pool.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *pgStore) Scroll(ctx context.Context, collection string, limit, offset int) ([]Item, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}

	scrollSQL := fmt.Sprintf(`SELECT id, payload FROM %s ORDER BY id LIMIT $1 OFFSET $2`, table)
	rows, err := s.pool.Query(ctx, scrollSQL, limit, offset)
	if err != nil {
		return nil, mapMissingTable(err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item Item
			raw  []byte
		)
		if err := rows.Scan(&item.ID, &raw); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal(raw, &item.Payload); err != nil {
			s.logger.Warn("skipping row with corrupt payload", "id", item.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapMissingTable(err)
	}
	return items, nil
}

func (s *pgStore) DropCollection(ctx context.Context, name string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deregisterSQL := fmt.Sprintf(`DELETE FROM %s WHERE name = $1 RETURNING table_name`, collectionsTable)
	var table string
	err = tx.QueryRow(ctx, deregisterSQL, name).Scan(&table)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deregistering collection %q: %w", name, err)
	}
	if !identPattern.MatchString(strings.TrimPrefix(table, tablePrefix)) {
		return false, fmt.Errorf("refusing to drop suspicious table name %q", table)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return false, fmt.Errorf("dropping table %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing collection drop: %w", err)
	}
	return true, nil
}

func (s *pgStore) Close() {
	s.pool.Close()
}

// collectionTable maps a collection name to its backing table. Names are
// normalized and validated since table names cannot be bound as query
// parameters.
func collectionTable(name string) (string, error) {
	normalized := strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	if normalized == "" || !identPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid collection name %q", name)
	}
	return tablePrefix + normalized, nil
}

// mapMissingTable converts the undefined-table SQLSTATE into the package
// sentinel so callers can distinguish "no such collection" from real
// failures.
func mapMissingTable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return ErrCollectionNotFound
	}
	return err
}
