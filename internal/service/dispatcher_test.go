package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/menusync/internal/client"
	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/pubsub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var burgerKey = domain.ProductKey{Kind: domain.KindItem, ID: "burger-01"}

func newLocalAPI(t *testing.T, remote *fakeRemote) (*LocalMenuAPI, *Applier) {
	t.Helper()
	index, _ := newTestIndex(t)
	applier := NewApplier(index, pubsub.New())
	return NewLocalMenuAPI(remote, index, applier, false), applier
}

func TestLocalMenuAPI_RetrieveAppliesCatalog(t *testing.T) {
	remote := &fakeRemote{retrieveResp: &domain.RetrieveResponse{Fingerprint: "abc123", Catalog: testCatalog("")}}
	api, applier := newLocalAPI(t, remote)
	ctx := context.Background()

	resp, err := api.Retrieve(ctx, domain.RetrieveRequest{Scope: testScope})
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.Fingerprint)

	fingerprint, err := applier.LastFingerprint(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "abc123", fingerprint)

	cached, err := api.Product(ctx, domain.ProductRequest{Scope: testScope, Key: burgerKey})
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Equal(t, "Burger", cached.Product.Name)
	assert.Zero(t, remote.calls())
}

func TestLocalMenuAPI_RetrieveSendsLastFingerprint(t *testing.T) {
	remote := &fakeRemote{retrieveResp: &domain.RetrieveResponse{Fingerprint: "abc123", NotModified: true}}
	api, applier := newLocalAPI(t, remote)
	ctx := context.Background()

	_, err := applier.Apply(ctx, testScope, testCatalog("abc123"), ApplyOptions{})
	require.NoError(t, err)

	resp, err := api.Retrieve(ctx, domain.RetrieveRequest{Scope: testScope})
	require.NoError(t, err)
	assert.True(t, resp.NotModified)
	require.Len(t, remote.retrieveReqs, 1)
	assert.Equal(t, "abc123", remote.retrieveReqs[0].Fingerprint)
}

func TestLocalMenuAPI_RetrieveForwardsRemoteError(t *testing.T) {
	remoteErr := &client.StatusError{Code: 503, Message: "maintenance"}
	api, _ := newLocalAPI(t, &fakeRemote{retrieveErr: remoteErr})

	_, err := api.Retrieve(context.Background(), domain.RetrieveRequest{Scope: testScope})
	assert.Same(t, remoteErr, err)
}

func TestLocalMenuAPI_RetrieveStorageFailure(t *testing.T) {
	index, mr := newTestIndex(t)
	remote := &fakeRemote{retrieveResp: &domain.RetrieveResponse{Fingerprint: "abc123", Catalog: testCatalog("abc123")}}
	api := NewLocalMenuAPI(remote, index, NewApplier(index, nil), false)
	mr.Close()

	resp, err := api.Retrieve(context.Background(), domain.RetrieveRequest{Scope: testScope})
	assert.Nil(t, resp)
	assert.Error(t, err)
}

func TestLocalMenuAPI_ProductMissFallsBackToRemote(t *testing.T) {
	remote := &fakeRemote{productResp: &domain.ProductResponse{Product: domain.Product{Kind: domain.KindItem, ID: "burger-01", Name: "Remote"}}}
	api, _ := newLocalAPI(t, remote)

	resp, err := api.Product(context.Background(), domain.ProductRequest{Scope: testScope, Key: burgerKey})
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, "Remote", resp.Product.Name)
	assert.Equal(t, 1, remote.calls())
}

func TestLocalMenuAPI_ProductFreshSkipsCache(t *testing.T) {
	remote := &fakeRemote{productResp: &domain.ProductResponse{Product: domain.Product{Name: "Remote"}}}
	api, applier := newLocalAPI(t, remote)
	ctx := context.Background()
	_, err := applier.Apply(ctx, testScope, testCatalog("abc123"), ApplyOptions{})
	require.NoError(t, err)

	resp, err := api.Product(ctx, domain.ProductRequest{Scope: testScope, Key: burgerKey, Fresh: true})
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 1, remote.calls())
}

func TestLocalMenuAPI_ProductKeysOnlyRecordGoesRemote(t *testing.T) {
	remote := &fakeRemote{productResp: &domain.ProductResponse{Product: domain.Product{Name: "Remote"}}}
	api, applier := newLocalAPI(t, remote)
	ctx := context.Background()
	_, err := applier.Apply(ctx, testScope, testCatalog("abc123"), ApplyOptions{KeysOnly: true})
	require.NoError(t, err)

	resp, err := api.Product(ctx, domain.ProductRequest{Scope: testScope, Key: burgerKey})
	require.NoError(t, err)
	assert.Equal(t, "Remote", resp.Product.Name)
}

func TestLocalMenuAPI_ProductStorageUnavailable(t *testing.T) {
	index, mr := newTestIndex(t)
	remote := &fakeRemote{productResp: &domain.ProductResponse{Product: domain.Product{Name: "Remote"}}}
	api := NewLocalMenuAPI(remote, index, NewApplier(index, nil), false)
	mr.Close()

	resp, err := api.Product(context.Background(), domain.ProductRequest{Scope: testScope, Key: burgerKey})
	require.NoError(t, err)
	assert.Equal(t, "Remote", resp.Product.Name)
}

func TestLocalMenuAPI_ProductRemoteErrorVerbatim(t *testing.T) {
	remoteErr := &client.StatusError{Code: 404, Message: "no such product"}
	api, _ := newLocalAPI(t, &fakeRemote{productErr: remoteErr})

	resp, err := api.Product(context.Background(), domain.ProductRequest{Scope: testScope, Key: burgerKey})
	assert.Nil(t, resp)
	assert.Same(t, remoteErr, err)
}

func TestLocalMenuAPI_ProductSharesConcurrentLookups(t *testing.T) {
	gate := make(chan struct{})
	remote := &fakeRemote{
		productResp: &domain.ProductResponse{Product: domain.Product{Name: "Remote"}},
		productGate: gate,
	}
	api, _ := newLocalAPI(t, remote)

	var wg sync.WaitGroup
	responses := make([]*domain.ProductResponse, 5)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := api.Product(context.Background(), domain.ProductRequest{Scope: testScope, Key: burgerKey, Fresh: true})
			assert.NoError(t, err)
			responses[i] = resp
		}(i)
	}

	require.Eventually(t, func() bool { return remote.calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, remote.calls(), 5)
	for _, resp := range responses {
		require.NotNil(t, resp)
		assert.Equal(t, "Remote", resp.Product.Name)
	}
	responses[0].Product.Name = "changed"
	assert.Equal(t, "Remote", remote.productResp.Product.Name)
}

func TestLocalMenuAPI_ProductCancelledCallerLeavesOthersWaiting(t *testing.T) {
	gate := make(chan struct{})
	remote := &fakeRemote{
		productResp: &domain.ProductResponse{Product: domain.Product{Name: "Remote"}},
		productGate: gate,
	}
	api, _ := newLocalAPI(t, remote)
	req := domain.ProductRequest{Scope: testScope, Key: burgerKey, Fresh: true}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := api.Product(ctx, req)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return remote.calls() == 1 }, time.Second, time.Millisecond)

	second := make(chan *domain.ProductResponse, 1)
	go func() {
		resp, err := api.Product(context.Background(), req)
		assert.NoError(t, err)
		second <- resp
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(gate)
	select {
	case resp := <-second:
		require.NotNil(t, resp)
		assert.Equal(t, "Remote", resp.Product.Name)
	case <-time.After(time.Second):
		t.Fatal("second caller never answered")
	}
	assert.Equal(t, 1, remote.calls())
}

func TestLocalMenuAPI_FeaturedPassesThrough(t *testing.T) {
	api, _ := newLocalAPI(t, &fakeRemote{})

	resp, err := api.Featured(context.Background(), domain.FeaturedRequest{Scope: testScope, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, resp.Products, 1)
}

func TestLocalMenuAPI_StreamInstallsFreshCatalog(t *testing.T) {
	remote := &fakeRemote{streams: make(chan *fakeStream, 1)}
	api, applier := newLocalAPI(t, remote)
	ctx := context.Background()

	sess, err := api.Stream(ctx, domain.StreamRequest{Scope: testScope})
	require.NoError(t, err)
	defer sess.Cancel(nil)
	stream := <-remote.streams

	var gotMenu *domain.Catalog
	var usedLocal bool
	sess.Subscribe(func(menu *domain.Catalog, fp string, local bool) {
		gotMenu, usedLocal = menu, local
	}, nil)

	stream.emit(domain.MenuEvent{Fingerprint: "abc123", Catalog: testCatalog("")})

	require.NotNil(t, gotMenu)
	assert.False(t, usedLocal)
	fingerprint, err := applier.LastFingerprint(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "abc123", fingerprint)

	resp, err := api.Product(ctx, domain.ProductRequest{Scope: testScope, Key: burgerKey})
	require.NoError(t, err)
	assert.True(t, resp.FromCache)

	// Deltas reach storage before the observer would see them.
	stream.emit(domain.MenuEvent{
		Fingerprint: "abc124",
		Changes: []domain.Change{
			{Op: domain.ChangeDelete, Section: "mains", Product: domain.Product{Kind: domain.KindItem, ID: "burger-01"}},
		},
	})
	fingerprint, err = applier.LastFingerprint(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "abc124", fingerprint)
	assert.Equal(t, "abc124", sess.Fingerprint())
}
