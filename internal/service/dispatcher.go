package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/menusync/internal/client"
	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/repository"
	"storefront/menusync/internal/session"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// LocalMenuAPI serves reads from the catalog index where it can and keeps
// the index current with every catalog it sees from the remote API.
type LocalMenuAPI struct {
	remote   client.MenuAPI
	index    repository.CatalogIndex
	applier  *Applier
	keysOnly bool
	group    singleflight.Group
}

var _ client.MenuAPI = (*LocalMenuAPI)(nil)

func NewLocalMenuAPI(remote client.MenuAPI, index repository.CatalogIndex, applier *Applier, keysOnly bool) *LocalMenuAPI {
	return &LocalMenuAPI{
		remote:   remote,
		index:    index,
		applier:  applier,
		keysOnly: keysOnly,
	}
}

func (l *LocalMenuAPI) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrieveResponse, error) {
	if req.Fingerprint == "" {
		last, err := l.applier.LastFingerprint(ctx, req.Scope)
		if err != nil {
			log.Warnf("Could not read last fingerprint for %s, retrieving full menu: %v", req.Scope, err)
		}
		req.Fingerprint = last
	}
	req.KeysOnly = req.KeysOnly || l.keysOnly

	resp, err := l.remote.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.HasCatalog() {
		catalog := resp.Catalog
		if catalog.Fingerprint == "" {
			catalog.Fingerprint = resp.Fingerprint
		}
		if _, err := l.applier.Apply(ctx, req.Scope, catalog, ApplyOptions{KeysOnly: req.KeysOnly}); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Product answers from the catalog index when a full record is stored and
// otherwise asks the remote API, sharing concurrent lookups of one key.
func (l *LocalMenuAPI) Product(ctx context.Context, req domain.ProductRequest) (*domain.ProductResponse, error) {
	if !req.Fresh {
		resp, err := l.cached(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Debugf("Local lookup of %s failed, asking remote: %v", req.Key, err)
		}
	}

	// The shared lookup outlives any single caller; each caller stops
	// waiting on its own context.
	key := req.Scope.String() + "|" + req.Key.String()
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		return l.remote.Product(shared, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := *res.Val.(*domain.ProductResponse)
		return &resp, nil
	}
}

var errKeysOnly = errors.New("record stored without payload")

func (l *LocalMenuAPI) cached(ctx context.Context, req domain.ProductRequest) (*domain.ProductResponse, error) {
	rec, err := l.index.Get(ctx, req.Scope, req.Key)
	if err != nil {
		return nil, err
	}
	if !rec.HasPayload() {
		return nil, errKeysOnly
	}

	product, err := domain.DecodePayload(rec.Key, rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached %s: %w", req.Key, err)
	}

	return &domain.ProductResponse{
		Product:   product,
		Modified:  rec.Modified,
		FromCache: true,
	}, nil
}

func (l *LocalMenuAPI) Featured(ctx context.Context, req domain.FeaturedRequest) (*domain.FeaturedResponse, error) {
	return l.remote.Featured(ctx, req)
}

// Stream opens a remote session that installs its bootstrap catalog and
// persists every delta through the applier.
func (l *LocalMenuAPI) Stream(ctx context.Context, req domain.StreamRequest, opts ...session.Option) (*session.Session, error) {
	req.KeysOnly = req.KeysOnly || l.keysOnly
	applyOpts := ApplyOptions{KeysOnly: req.KeysOnly}
	scope := req.Scope

	all := []session.Option{
		session.WithInstaller(func(ctx context.Context, catalog *domain.Catalog) error {
			_, err := l.applier.Apply(ctx, scope, catalog, applyOpts)
			return err
		}),
		session.WithDeltaSink(func(ctx context.Context, event domain.MenuEvent) error {
			return l.applier.ApplyDelta(ctx, scope, event, applyOpts)
		}),
	}
	all = append(all, opts...)

	return l.remote.Stream(ctx, req, all...)
}
