package state

import (
	"context"
	"errors"
	"fmt"

	"storefront/menusync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool and pgx.Tx used by the Postgres stores.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const CreateMetaTable = `
	CREATE TABLE IF NOT EXISTS menu_catalog_meta (
		scope         TEXT PRIMARY KEY,
		fingerprint   TEXT NOT NULL,
		version       TEXT NOT NULL,
		last_modified TIMESTAMPTZ NOT NULL
	)`

type PostgresFingerprintStore struct {
	db Querier
}

func NewPostgresFingerprintStore(db Querier) *PostgresFingerprintStore {
	return &PostgresFingerprintStore{db: db}
}

func (s *PostgresFingerprintStore) LoadMeta(ctx context.Context, scope domain.Scope) (domain.CatalogMeta, error) {
	query := `SELECT fingerprint, version, last_modified FROM menu_catalog_meta WHERE scope = $1`

	var meta domain.CatalogMeta
	err := s.db.QueryRow(ctx, query, scope.String()).Scan(&meta.Fingerprint, &meta.Version, &meta.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CatalogMeta{}, nil // Nothing applied yet
		}
		return domain.CatalogMeta{}, Unavailable(fmt.Errorf("failed to load catalog meta for %s: %w", scope, err))
	}

	return meta, nil
}

// SaveMeta writes meta through q, which is the apply transaction when called
// from the catalog index.
func (s *PostgresFingerprintStore) SaveMeta(ctx context.Context, q Querier, scope domain.Scope, meta domain.CatalogMeta) error {
	query := `
	INSERT INTO menu_catalog_meta (scope, fingerprint, version, last_modified)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (scope)
	DO UPDATE SET fingerprint = $2, version = $3, last_modified = $4`
	_, err := q.Exec(ctx, query, scope.String(), meta.Fingerprint, meta.Version, meta.LastModified)
	if err != nil {
		return fmt.Errorf("failed to save catalog meta for %s: %w", scope, err)
	}

	return nil
}
