package client

import (
	"context"
	"fmt"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/session"
)

// MenuAPI is implemented by the remote adapter and by the local read-through
// decorator that wraps it.
type MenuAPI interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrieveResponse, error)
	Product(ctx context.Context, req domain.ProductRequest) (*domain.ProductResponse, error)
	Featured(ctx context.Context, req domain.FeaturedRequest) (*domain.FeaturedResponse, error)
	Stream(ctx context.Context, req domain.StreamRequest, opts ...session.Option) (*session.Session, error)
}

// StatusError is a non-success answer from the menu service, passed to the
// caller unchanged.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("menu service returned %d: %s", e.Code, e.Message)
}
