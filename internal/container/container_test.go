package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"storefront/menusync/internal/config"
	"storefront/menusync/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogJSON = map[string]any{
	"fingerprint": "abc123",
	"catalog": map[string]any{
		"sections": []any{map[string]any{
			"name": "mains",
			"products": []any{
				map[string]any{"kind": "ITEM", "id": "burger-01", "name": "Burger"},
				map[string]any{"kind": "ITEM", "id": "fries-01", "name": "Fries"},
			},
		}},
	},
}

func newTestConfig(t *testing.T, handler http.Handler) (*config.Config, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	return &config.Config{
		Menu: config.MenuConfig{
			BaseURL:  server.URL,
			Partner:  "acme",
			Location: "downtown",
			Timeout:  5,
		},
		Session: config.SessionConfig{ReconnectDelay: 10 * time.Millisecond},
		Storage: config.StorageConfig{Driver: config.StorageRedis, KeyPrefix: "menusync:"},
		Redis:   config.RedisConfig{Host: mr.Host(), Port: port},
		Feed:    config.FeedConfig{Mirror: true, StreamPrefix: "menusync:stream:"},
	}, mr
}

func TestContainer_RetrieveThenServeFromCache(t *testing.T) {
	var hits atomic.Int32
	cfg, mr := newTestConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(catalogJSON))
	}))

	ctx := context.Background()
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.API.Retrieve(ctx, domain.RetrieveRequest{Scope: app.DefaultScope()})
	require.NoError(t, err)

	resp, err := app.API.Product(ctx, domain.ProductRequest{
		Scope: app.DefaultScope(),
		Key:   domain.ProductKey{Kind: domain.KindItem, ID: "fries-01"},
	})
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "Fries", resp.Product.Name)
	assert.EqualValues(t, 1, hits.Load())

	fingerprint, err := mr.Get("menusync:acme/downtown:catalog.fingerprint")
	require.NoError(t, err)
	assert.Equal(t, "abc123", fingerprint)
	products, err := mr.Stream("menusync:stream:ProductTask")
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestContainer_WatchOffersCommittedMenu(t *testing.T) {
	fingerprints := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	cfg, _ := newTestConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/partners/acme/locations/downtown/menu" {
			w.Header().Set("Content-Type", "application/json")
			assert.NoError(t, json.NewEncoder(w).Encode(catalogJSON))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case fingerprints <- r.URL.Query().Get("fingerprint"):
		default:
		}
		_ = conn.WriteJSON(map[string]any{"type": "data", "fingerprint": "abc123"})
		_, _, _ = conn.ReadMessage()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.API.Retrieve(ctx, domain.RetrieveRequest{Scope: app.DefaultScope()})
	require.NoError(t, err)

	type readyMenu struct {
		menu      *domain.Catalog
		usedLocal bool
	}
	ready := make(chan readyMenu, 1)
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx, []domain.Scope{app.DefaultScope()}, func(menu *domain.Catalog, _ string, usedLocal bool) {
			select {
			case ready <- readyMenu{menu: menu, usedLocal: usedLocal}:
			default:
			}
		}, nil)
	}()

	select {
	case fp := <-fingerprints:
		assert.Equal(t, "abc123", fp)
	case <-time.After(2 * time.Second):
		t.Fatal("watch never connected")
	}
	select {
	case got := <-ready:
		assert.True(t, got.usedLocal)
		require.NotNil(t, got.menu)
		assert.Equal(t, "abc123", got.menu.Fingerprint)
		assert.Equal(t, 2, got.menu.ProductCount())
	case <-time.After(2 * time.Second):
		t.Fatal("menu never became ready")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestContainer_WatchWithoutHeldMenuRequestsCatalog(t *testing.T) {
	fingerprints := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	cfg, _ := newTestConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/partners/acme/locations/downtown/menu" {
			w.Header().Set("Content-Type", "application/json")
			assert.NoError(t, json.NewEncoder(w).Encode(catalogJSON))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case fingerprints <- r.URL.Query().Get("fingerprint"):
		default:
		}
		_ = conn.WriteJSON(map[string]any{"type": "data", "fingerprint": "abc123", "catalog": catalogJSON["catalog"]})
		_, _, _ = conn.ReadMessage()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The fingerprint survives in storage, the menu it names does not.
	previous, err := New(ctx, cfg)
	require.NoError(t, err)
	_, err = previous.API.Retrieve(ctx, domain.RetrieveRequest{Scope: previous.DefaultScope()})
	require.NoError(t, err)
	require.NoError(t, previous.Close())

	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	ready := make(chan bool, 1)
	done := make(chan error, 1)
	go func() {
		done <- app.Watch(ctx, app.DefaultScope(), func(menu *domain.Catalog, _ string, usedLocal bool) {
			assert.Equal(t, 2, menu.ProductCount())
			select {
			case ready <- usedLocal:
			default:
			}
		}, nil)
	}()

	select {
	case fp := <-fingerprints:
		assert.Empty(t, fp)
	case <-time.After(2 * time.Second):
		t.Fatal("watch never connected")
	}
	select {
	case usedLocal := <-ready:
		assert.False(t, usedLocal)
	case <-time.After(2 * time.Second):
		t.Fatal("menu never became ready")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	require.NotNil(t, app.Applier.LastCatalog(app.DefaultScope()))
}

func TestNew_FailsWithoutRedis(t *testing.T) {
	cfg, mr := newTestConfig(t, http.NotFoundHandler())
	mr.Close()

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
