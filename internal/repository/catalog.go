package repository

import (
	"context"
	"errors"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/state"
)

var (
	ErrNotFound           = errors.New("product not found")
	ErrStorageUnavailable = state.ErrStorageUnavailable
	// ErrDuplicateID rejects an update that would give one raw id to two
	// product keys of a scope.
	ErrDuplicateID = errors.New("product id already taken")
)

// Tx collects the writes of one catalog apply. Nothing becomes visible
// unless the surrounding Update returns nil.
type Tx interface {
	Upsert(rec domain.ProductRecord) error
	Delete(key domain.ProductKey) error
	SaveMeta(meta domain.CatalogMeta) error
}

// CatalogIndex is the local keyed store of product records. Its catalog
// meta is committed in the same transaction as the products.
type CatalogIndex interface {
	state.FingerprintStore

	// Init creates the secondary index structures. Safe to call repeatedly.
	Init(ctx context.Context) error
	Get(ctx context.Context, scope domain.Scope, key domain.ProductKey) (*domain.ProductRecord, error)
	ByID(ctx context.Context, scope domain.Scope, id string) (domain.ProductKey, error)
	ByKind(ctx context.Context, scope domain.Scope, kind domain.Kind) ([]domain.ProductKey, error)
	Update(ctx context.Context, scope domain.Scope, fn func(tx Tx) error) error
}
