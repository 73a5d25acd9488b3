package session

import (
	"context"
	"time"

	"storefront/menusync/internal/domain"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

type Option func(*Session)

// WithBaseMenu supplies a locally cached menu and its fingerprint. The menu
// is trusted if the first stream event reports the same fingerprint. A
// fingerprint without a menu is dropped.
func WithBaseMenu(menu *domain.Catalog, fingerprint string) Option {
	return func(s *Session) {
		if menu == nil {
			fingerprint = ""
		}
		s.baseMenu = menu
		s.fingerprint = fingerprint
	}
}

func WithMaxLifetime(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.maxLifetime = d
		}
	}
}

func WithCheckInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithOneShot disables the periodic lifetime re-check.
func WithOneShot() Option {
	return func(s *Session) {
		s.oneShot = true
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

func WithInstaller(fn Installer) Option {
	return func(s *Session) {
		s.installer = fn
	}
}

func WithDeltaSink(fn DeltaSink) Option {
	return func(s *Session) {
		s.deltaSink = fn
	}
}

func WithLogger(logger log.FieldLogger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithContext sets the parent of the context handed to the installer and
// delta sink. It is cancelled together with the session.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}
