package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/state"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is satisfied by *pgxpool.Pool.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	idIndexName     = "menu_products_id_idx"
	uniqueViolation = "23505"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS menu_products (
		scope    TEXT NOT NULL,
		key      TEXT NOT NULL,
		kind     TEXT NOT NULL,
		id       TEXT NOT NULL,
		payload  BYTEA,
		modified TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (scope, key)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + idIndexName + ` ON menu_products (scope, id)`,
	`CREATE INDEX IF NOT EXISTS menu_products_kind_idx ON menu_products (scope, kind)`,
	state.CreateMetaTable,
}

type postgresCatalogIndex struct {
	db   PgxPool
	meta *state.PostgresFingerprintStore
}

func NewPostgresCatalogIndex(db PgxPool) CatalogIndex {
	return &postgresCatalogIndex{
		db:   db,
		meta: state.NewPostgresFingerprintStore(db),
	}
}

func (r *postgresCatalogIndex) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return state.Unavailable(fmt.Errorf("failed to create catalog schema: %w", err))
		}
	}
	return nil
}

func (r *postgresCatalogIndex) Get(ctx context.Context, scope domain.Scope, key domain.ProductKey) (*domain.ProductRecord, error) {
	query := `SELECT payload, modified FROM menu_products WHERE scope = $1 AND key = $2`

	record := &domain.ProductRecord{Key: key}
	err := r.db.QueryRow(ctx, query, scope.String(), key.Encode()).Scan(&record.Payload, &record.Modified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, state.Unavailable(fmt.Errorf("failed to get product %s: %w", key, err))
	}

	return record, nil
}

func (r *postgresCatalogIndex) ByID(ctx context.Context, scope domain.Scope, id string) (domain.ProductKey, error) {
	query := `SELECT kind FROM menu_products WHERE scope = $1 AND id = $2`

	var kind string
	if err := r.db.QueryRow(ctx, query, scope.String(), id).Scan(&kind); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProductKey{}, ErrNotFound
		}
		return domain.ProductKey{}, state.Unavailable(fmt.Errorf("failed to look up product id %s: %w", id, err))
	}

	return domain.ProductKey{Kind: domain.Kind(kind), ID: id}, nil
}

func (r *postgresCatalogIndex) ByKind(ctx context.Context, scope domain.Scope, kind domain.Kind) ([]domain.ProductKey, error) {
	query := `SELECT id FROM menu_products WHERE scope = $1 AND kind = $2 ORDER BY key`

	rows, err := r.db.Query(ctx, query, scope.String(), kind.String())
	if err != nil {
		return nil, state.Unavailable(fmt.Errorf("failed to list products of kind %s: %w", kind, err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, state.Unavailable(fmt.Errorf("failed to read products of kind %s: %w", kind, err))
	}

	keys := make([]domain.ProductKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, domain.ProductKey{Kind: kind, ID: id})
	}
	return keys, nil
}

func (r *postgresCatalogIndex) LoadMeta(ctx context.Context, scope domain.Scope) (domain.CatalogMeta, error) {
	return r.meta.LoadMeta(ctx, scope)
}

func (r *postgresCatalogIndex) Update(ctx context.Context, scope domain.Scope, fn func(tx Tx) error) error {
	pgTx, err := r.db.Begin(ctx)
	if err != nil {
		return state.Unavailable(fmt.Errorf("failed to begin catalog update for %s: %w", scope, err))
	}
	defer pgTx.Rollback(ctx) // no-op after commit

	if err := fn(&postgresTx{ctx: ctx, scope: scope, tx: pgTx, meta: r.meta}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return state.Unavailable(fmt.Errorf("failed to commit catalog update for %s: %w", scope, err))
	}

	return nil
}

type postgresTx struct {
	ctx   context.Context
	scope domain.Scope
	tx    pgx.Tx
	meta  *state.PostgresFingerprintStore
}

func (tx *postgresTx) Upsert(rec domain.ProductRecord) error {
	query := `
	INSERT INTO menu_products (scope, key, kind, id, payload, modified)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (scope, key)
	DO UPDATE SET payload = $5, modified = $6`
	_, err := tx.tx.Exec(tx.ctx, query,
		tx.scope.String(), rec.Key.Encode(), rec.Key.Kind.String(), rec.Key.ID, rec.Payload, rec.Modified)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == idIndexName {
			return fmt.Errorf("failed to upsert product %s: %w", rec.Key, ErrDuplicateID)
		}
		return state.Unavailable(fmt.Errorf("failed to upsert product %s: %w", rec.Key, err))
	}
	return nil
}

func (tx *postgresTx) Delete(key domain.ProductKey) error {
	query := `DELETE FROM menu_products WHERE scope = $1 AND key = $2`
	if _, err := tx.tx.Exec(tx.ctx, query, tx.scope.String(), key.Encode()); err != nil {
		return state.Unavailable(fmt.Errorf("failed to delete product %s: %w", key, err))
	}
	return nil
}

func (tx *postgresTx) SaveMeta(meta domain.CatalogMeta) error {
	if err := tx.meta.SaveMeta(tx.ctx, tx.tx, tx.scope, meta); err != nil {
		return state.Unavailable(err)
	}
	return nil
}
