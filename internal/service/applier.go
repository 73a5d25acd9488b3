package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/pubsub"
	"storefront/menusync/internal/repository"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipNoSections
	SkipUnchanged
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipNoSections:
		return "no sections"
	case SkipUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

type ApplyOptions struct {
	KeysOnly   bool      // Store keys without payloads
	ModifiedAt time.Time // Zero means the applier's clock
}

type ApplyResult struct {
	Applied     bool
	Skipped     SkipReason
	Products    int
	Sections    int
	Fingerprint string
}

type ApplierOption func(*Applier)

func WithApplierClock(c clock.Clock) ApplierOption {
	return func(a *Applier) {
		a.clock = c
	}
}

func WithApplierLogger(l log.FieldLogger) ApplierOption {
	return func(a *Applier) {
		a.log = l
	}
}

// Applier commits catalogs and deltas to the catalog index and announces
// the committed products on the feed.
type Applier struct {
	index repository.CatalogIndex
	feed  *pubsub.Feed
	clock clock.Clock
	log   log.FieldLogger
	locks *keyedMutex

	mu    sync.RWMutex
	last  map[domain.Scope]string
	menus map[domain.Scope]*domain.Catalog
}

func NewApplier(index repository.CatalogIndex, feed *pubsub.Feed, opts ...ApplierOption) *Applier {
	a := &Applier{
		index: index,
		feed:  feed,
		clock: clock.New(),
		log:   log.StandardLogger(),
		locks: newKeyedMutex(),
		last:  make(map[domain.Scope]string),
		menus: make(map[domain.Scope]*domain.Catalog),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LastFingerprint returns the fingerprint of the last catalog committed for
// scope, reading it from storage on first use.
func (a *Applier) LastFingerprint(ctx context.Context, scope domain.Scope) (string, error) {
	a.mu.RLock()
	fingerprint, ok := a.last[scope]
	a.mu.RUnlock()
	if ok {
		return fingerprint, nil
	}

	meta, err := a.index.LoadMeta(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("failed to load catalog meta for %s: %w", scope, err)
	}

	a.remember(scope, meta.Fingerprint)
	return meta.Fingerprint, nil
}

// LastCatalog returns the menu committed for scope by this applier, with
// every later delta folded in, or nil when none was committed since start.
func (a *Applier) LastCatalog(scope domain.Scope) *domain.Catalog {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.menus[scope]
}

func (a *Applier) rememberMenu(scope domain.Scope, menu *domain.Catalog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.menus[scope] = menu
}

// foldMenu applies event to the held menu of scope. Without a held menu
// there is nothing to fold into.
func (a *Applier) foldMenu(scope domain.Scope, event domain.MenuEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if menu, ok := a.menus[scope]; ok {
		a.menus[scope] = menu.WithEvent(event)
	}
}

func (a *Applier) remember(scope domain.Scope, fingerprint string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last[scope] = fingerprint
}

// Apply persists every product of catalog unless it is empty or its
// fingerprint is the one already stored. Products are published only after
// the transaction commits.
func (a *Applier) Apply(ctx context.Context, scope domain.Scope, catalog *domain.Catalog, opts ApplyOptions) (ApplyResult, error) {
	if !catalog.HasSections() {
		return ApplyResult{Skipped: SkipNoSections}, nil
	}

	unlock := a.locks.Lock(scope.String())
	defer unlock()

	result := ApplyResult{Fingerprint: catalog.Fingerprint}

	last, err := a.LastFingerprint(ctx, scope)
	if err != nil {
		return result, err
	}
	if last != "" && last == catalog.Fingerprint {
		a.log.Debugf("Catalog %s for %s already applied, skipping", catalog.Fingerprint, scope)
		if a.LastCatalog(scope) == nil {
			a.rememberMenu(scope, catalog.WithEvent(domain.MenuEvent{}))
		}
		result.Skipped = SkipUnchanged
		return result, nil
	}

	modified := a.modifiedAt(opts)
	var updates []sectionUpdate

	err = a.index.Update(ctx, scope, func(tx repository.Tx) error {
		updates = updates[:0]
		for _, section := range catalog.Sections {
			if len(section.Products) == 0 {
				continue
			}
			update := sectionUpdate{section: &section}
			for _, product := range section.Products {
				rec, err := record(product, modified, opts.KeysOnly)
				if err != nil {
					return err
				}
				if err := tx.Upsert(rec); err != nil {
					return err
				}
				update.products = append(update.products, domain.ProductNotification{
					Scope:    scope,
					Section:  section.Name,
					Op:       domain.ChangeUpdate,
					Product:  product,
					Modified: modified,
				})
			}
			updates = append(updates, update)
		}

		return tx.SaveMeta(domain.CatalogMeta{
			Fingerprint:  catalog.Fingerprint,
			Version:      catalog.Version,
			LastModified: modified,
		})
	})
	if err != nil {
		return result, fmt.Errorf("failed to apply catalog %s for %s: %w", catalog.Fingerprint, scope, err)
	}

	a.remember(scope, catalog.Fingerprint)
	a.rememberMenu(scope, catalog.WithEvent(domain.MenuEvent{}))
	a.publish(ctx, scope, updates)

	result.Applied = true
	for _, update := range updates {
		result.Products += len(update.products)
	}
	result.Sections = len(updates)
	a.log.Infof("📦 Applied catalog %s for %s: %d products in %d sections",
		catalog.Fingerprint, scope, result.Products, result.Sections)
	return result, nil
}

// ApplyDelta persists the changes of a live stream event together with its
// fingerprint. An event carrying a full catalog is applied as a catalog.
func (a *Applier) ApplyDelta(ctx context.Context, scope domain.Scope, event domain.MenuEvent, opts ApplyOptions) error {
	if event.HasCatalog() {
		catalog := *event.Catalog
		if event.Fingerprint != "" {
			catalog.Fingerprint = event.Fingerprint
		}
		_, err := a.Apply(ctx, scope, &catalog, opts)
		return err
	}
	if len(event.Changes) == 0 && event.Fingerprint == "" {
		return nil
	}

	unlock := a.locks.Lock(scope.String())
	defer unlock()

	modified := a.modifiedAt(opts)
	notifications := make([]domain.ProductNotification, 0, len(event.Changes))

	err := a.index.Update(ctx, scope, func(tx repository.Tx) error {
		notifications = notifications[:0]
		for _, change := range event.Changes {
			switch change.Op {
			case domain.ChangeDelete:
				if err := tx.Delete(change.Product.Key()); err != nil {
					return err
				}
			case domain.ChangeAdd, domain.ChangeUpdate:
				rec, err := record(change.Product, modified, opts.KeysOnly)
				if err != nil {
					return err
				}
				if err := tx.Upsert(rec); err != nil {
					return err
				}
			default:
				a.log.Warnf("Ignoring change with unknown op %q for %s", change.Op, change.Product.Key())
				continue
			}
			notifications = append(notifications, domain.ProductNotification{
				Scope:    scope,
				Section:  change.Section,
				Op:       change.Op,
				Product:  change.Product,
				Modified: modified,
			})
		}

		if event.Fingerprint == "" {
			return nil
		}
		return tx.SaveMeta(domain.CatalogMeta{
			Fingerprint:  event.Fingerprint,
			Version:      event.Version,
			LastModified: modified,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to apply delta %s for %s: %w", event.Fingerprint, scope, err)
	}

	if event.Fingerprint != "" {
		a.remember(scope, event.Fingerprint)
	}
	a.foldMenu(scope, event)
	a.publish(ctx, scope, []sectionUpdate{{products: notifications}})

	a.log.Debugf("Applied %d changes for %s at %s", len(notifications), scope, event.Fingerprint)
	return nil
}

func (a *Applier) modifiedAt(opts ApplyOptions) time.Time {
	if !opts.ModifiedAt.IsZero() {
		return opts.ModifiedAt
	}
	return a.clock.Now()
}

func record(product domain.Product, modified time.Time, keysOnly bool) (domain.ProductRecord, error) {
	rec := domain.ProductRecord{Key: product.Key(), Modified: modified}
	if keysOnly {
		return rec, nil
	}

	payload, err := domain.EncodePayload(product)
	if err != nil {
		return rec, err
	}
	rec.Payload = payload
	return rec, nil
}

// sectionUpdate holds the notifications of one committed section. A nil
// section carries delta changes, which announce no section.
type sectionUpdate struct {
	section  *domain.Section
	products []domain.ProductNotification
}

// publish announces each section's products followed by the section itself.
func (a *Applier) publish(ctx context.Context, scope domain.Scope, updates []sectionUpdate) {
	if a.feed == nil {
		return
	}

	for _, update := range updates {
		for _, n := range update.products {
			a.feed.Publish(ctx, pubsub.TopicProducts, n)
			if n.Section != "" {
				a.feed.Publish(ctx, pubsub.SectionProductsTopic(n.Section), n)
			}
		}
		if update.section != nil {
			a.feed.Publish(ctx, pubsub.TopicSections, domain.SectionNotification{Scope: scope, Section: *update.section})
		}
	}
}
