package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/menusync/internal/client"
	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/session"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

const DefaultReconnectDelay = 5 * time.Second

// Watcher keeps one menu session per Watch call alive, re-establishing it
// when it expires or its transport fails.
type Watcher struct {
	api            client.MenuAPI
	clock          clock.Clock
	reconnectDelay time.Duration
	keysOnly       bool
	opts           []session.Option
}

type WatcherOption func(*Watcher)

func WithWatcherClock(c clock.Clock) WatcherOption {
	return func(w *Watcher) {
		w.clock = c
	}
}

func WithReconnectDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.reconnectDelay = d
		}
	}
}

func WithKeysOnly(keysOnly bool) WatcherOption {
	return func(w *Watcher) {
		w.keysOnly = keysOnly
	}
}

// WithSessionOptions adds options to every session the watcher opens.
func WithSessionOptions(opts ...session.Option) WatcherOption {
	return func(w *Watcher) {
		w.opts = append(w.opts, opts...)
	}
}

func NewWatcher(api client.MenuAPI, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		api:            api,
		clock:          clock.New(),
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch streams the menu of scope until ctx is done. base and fingerprint
// seed the first session; later sessions start from the menu the previous
// one ended with. A fingerprint is only offered together with the menu it
// identifies, so a nil base requests a full catalog. ready fires once per
// established session.
func (w *Watcher) Watch(
	ctx context.Context,
	scope domain.Scope,
	base *domain.Catalog,
	fingerprint string,
	ready session.ReadyFunc,
	observer session.ObserverFunc,
) error {
	logger := log.WithField("scope", scope.String())
	tracker := &menuTracker{menu: base, fingerprint: fingerprint}

	for {
		menu, fp := tracker.snapshot()
		sess, err := w.api.Stream(ctx, domain.StreamRequest{
			Scope:       scope,
			Fingerprint: fp,
			BaseMenu:    menu,
			KeysOnly:    w.keysOnly,
		}, w.opts...)
		if err != nil {
			logger.Warnf("❌ Failed to open menu stream: %v", err)
			if !w.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		sess.OnEnd(func() {
			logger.Infof("Menu stream ended by server")
			sess.Cancel(nil)
		})
		sess.OnError(func(usable bool, err error) {
			if usable {
				logger.Warnf("Menu session %s reported: %v", sess.ID(), err)
			}
		})
		sess.Subscribe(
			func(menu *domain.Catalog, fp string, usedLocal bool) {
				tracker.set(menu, fp)
				if ready != nil {
					ready(menu, fp, usedLocal)
				}
			},
			func(event domain.MenuEvent) {
				tracker.apply(event)
				if observer != nil {
					observer(event)
				}
			},
		)

		select {
		case <-ctx.Done():
			sess.Cancel(nil)
			return ctx.Err()
		case <-sess.Done():
		}

		switch err := sess.Err(); {
		case sess.Expired():
			logger.Infof("🔄 Menu session %s open since %s expired, re-establishing",
				sess.ID(), sess.Established().Format(time.RFC3339))
			continue
		case errors.Is(err, session.ErrProtocolViolation):
			logger.Warnf("Server rejected local menu %s, requesting a full catalog", fp)
			tracker.set(nil, "")
		case err != nil:
			logger.Warnf("❌ Menu session %s failed: %v", sess.ID(), err)
		}

		if !w.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (w *Watcher) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.clock.After(w.reconnectDelay):
		return true
	}
}

// menuTracker follows the menu a session has reached so the next session
// can offer it to the server.
type menuTracker struct {
	mu          sync.Mutex
	menu        *domain.Catalog
	fingerprint string
}

func (t *menuTracker) snapshot() (*domain.Catalog, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.menu == nil {
		return nil, ""
	}
	return t.menu, t.fingerprint
}

func (t *menuTracker) set(menu *domain.Catalog, fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.menu = menu
	t.fingerprint = fingerprint
}

func (t *menuTracker) apply(event domain.MenuEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Changes without a known starting menu cannot be folded into one.
	if t.menu == nil && !event.HasCatalog() {
		return
	}
	t.menu = t.menu.WithEvent(event)
	if event.Fingerprint != "" {
		t.fingerprint = event.Fingerprint
	}
}
