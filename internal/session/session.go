// Package session implements the observable menu session: one long-lived
// menu stream that is bootstrapped once and then delivers deltas until it
// is cancelled, fails, or outlives its maximum lifetime.
//
// A session moves through Created, Checking, Bootstrapping, Live and
// Cancelled. The first data event decides whether the caller's local menu
// is still valid (the server echoes its fingerprint) or a fresh catalog has
// to be installed. Every later event is a delta handed to the observer.
// Owners detect expiry through Done and Expired and open a new session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/menusync/internal/domain"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxLifetime   = 8 * time.Minute
	DefaultCheckInterval = 30 * time.Second
)

var (
	ErrProtocolViolation = errors.New("bootstrap event carries neither the expected fingerprint nor a catalog")
	ErrExpired           = errors.New("menu session reached its maximum lifetime")
)

type State int

const (
	StateCreated State = iota
	StateChecking
	StateBootstrapping
	StateLive
	StateExpiring
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateChecking:
		return "checking"
	case StateBootstrapping:
		return "bootstrapping"
	case StateLive:
		return "live"
	case StateExpiring:
		return "expiring"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Handlers are the listeners a session attaches to its stream.
type Handlers struct {
	Data   func(event domain.MenuEvent)
	Status func(status domain.StreamStatus)
	Error  func(err error)
	End    func()
}

// Stream is a server-streamed menu channel. Listen attaches the handlers and
// starts delivery; events must be delivered one at a time in arrival order.
// Cancel releases the channel and must not block on in-flight handlers.
type Stream interface {
	Listen(h Handlers)
	Cancel()
}

type (
	ReadyFunc    func(menu *domain.Catalog, fingerprint string, usedLocal bool)
	ObserverFunc func(event domain.MenuEvent)
	// Installer persists a freshly delivered catalog before ready fires.
	Installer func(ctx context.Context, catalog *domain.Catalog) error
	// DeltaSink persists a delta before the observer sees it.
	DeltaSink func(ctx context.Context, event domain.MenuEvent) error
)

type Session struct {
	id            string
	stream        Stream
	clock         clock.Clock
	log           log.FieldLogger
	maxLifetime   time.Duration
	checkInterval time.Duration
	oneShot       bool
	installer     Installer
	deltaSink     DeltaSink

	ctx       context.Context
	cancelCtx context.CancelFunc
	done      chan struct{}

	mu               sync.Mutex
	state            State
	established      time.Time
	baseMenu         *domain.Catalog
	fingerprint      string
	initialMenuReady bool
	listening        bool
	streamCancelled  bool
	expired          bool
	err              error
	timer            *clock.Timer

	ready    ReadyFunc
	observer ObserverFunc
	onEnd    func()
	onCancel func()
	onError  func(usable bool, err error)
	onStatus func(status domain.StreamStatus)
}

// New wraps stream in a session. The session owns stream from here on and
// is the only one allowed to cancel it.
func New(stream Stream, opts ...Option) *Session {
	s := &Session{
		id:            uuid.NewString(),
		stream:        stream,
		clock:         clock.New(),
		log:           log.StandardLogger(),
		maxLifetime:   DefaultMaxLifetime,
		checkInterval: DefaultCheckInterval,
		done:          make(chan struct{}),
		state:         StateCreated,
		ctx:           context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancelCtx = context.WithCancel(s.ctx)
	s.established = s.clock.Now()
	s.log = s.log.WithField("session_id", s.id)
	return s
}

func (s *Session) OnEnd(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnd = fn
}

func (s *Session) OnCancel(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCancel = fn
}

// OnError registers fn for stream and install failures. usable reports
// whether the connection survives the failure.
func (s *Session) OnError(fn func(usable bool, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

func (s *Session) OnStatus(fn func(status domain.StreamStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = fn
}

// Subscribe registers the ready callback and the delta observer and starts
// the session. Only the first call has an effect.
func (s *Session) Subscribe(ready ReadyFunc, observer ObserverFunc) {
	s.mu.Lock()
	if s.state != StateCreated {
		state := s.state
		s.mu.Unlock()
		s.log.Warnf("Subscribe called on %s session, ignoring", state)
		return
	}
	s.ready = ready
	s.observer = observer
	s.state = StateChecking
	s.mu.Unlock()

	s.check()
}

// check compares the session age with the maximum lifetime and either
// cancels the session or keeps it running, re-arming itself.
func (s *Session) check() {
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	if !now.Before(s.established.Add(s.maxLifetime)) {
		s.expired = true
		s.err = ErrExpired
		s.state = StateExpiring
		s.mu.Unlock()

		s.log.Infof("Menu session open since %s reached max lifetime %s, cancelling",
			s.established.Format(time.RFC3339), s.maxLifetime)
		s.Cancel(nil)
		return
	}

	attach := !s.listening
	s.listening = true
	if s.state == StateChecking {
		s.state = StateBootstrapping
	}
	if !s.oneShot {
		s.timer = s.clock.AfterFunc(s.checkInterval, s.check)
	}
	s.mu.Unlock()

	if attach {
		s.stream.Listen(Handlers{
			Data:   s.handleData,
			Status: s.handleStatus,
			Error:  s.handleError,
			End:    s.handleEnd,
		})
	}
}

func (s *Session) handleData(event domain.MenuEvent) {
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	if !s.initialMenuReady {
		s.mu.Unlock()
		s.bootstrap(event)
		return
	}

	if event.Fingerprint != "" && event.Fingerprint != s.fingerprint {
		s.fingerprint = event.Fingerprint
	}
	observer, sink, onError := s.observer, s.deltaSink, s.onError
	s.mu.Unlock()

	if sink != nil {
		if err := sink(s.ctx, event); err != nil {
			s.log.Warnf("Failed to persist menu delta %s: %v", event.Fingerprint, err)
			if onError != nil {
				onError(true, err)
			}
		}
	}

	if observer != nil {
		observer(event)
	}
}

func (s *Session) bootstrap(event domain.MenuEvent) {
	s.mu.Lock()
	base, fingerprint, ready := s.baseMenu, s.fingerprint, s.ready
	s.mu.Unlock()

	switch {
	case fingerprint != "" && event.Fingerprint == fingerprint:
		s.markReady(base, fingerprint)
		s.log.Debugf("Server confirmed local menu %s", fingerprint)
		if ready != nil {
			ready(base, fingerprint, true)
		}

	case event.HasCatalog():
		catalog := event.Catalog
		fresh := event.Fingerprint
		if fresh == "" {
			fresh = catalog.Fingerprint
		}
		if catalog.Fingerprint == "" {
			catalog.Fingerprint = fresh
		}
		if catalog.Version == "" {
			catalog.Version = event.Version
		}

		if s.installer != nil {
			if err := s.installer(s.ctx, catalog); err != nil {
				s.fail(err)
				return
			}
		}

		s.markReady(catalog, fresh)
		s.log.Debugf("Installed fresh menu %s with %d products", fresh, catalog.ProductCount())
		if ready != nil {
			ready(catalog, fresh, false)
		}

	default:
		s.log.Errorf("Protocol violation: bootstrap event %q does not match %q and has no catalog",
			event.Fingerprint, fingerprint)
		s.mu.Lock()
		s.err = ErrProtocolViolation
		s.mu.Unlock()
		s.Cancel(nil)
	}
}

func (s *Session) markReady(menu *domain.Catalog, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseMenu = menu
	s.fingerprint = fingerprint
	s.initialMenuReady = true
	if s.state == StateBootstrapping {
		s.state = StateLive
	}
}

func (s *Session) handleStatus(status domain.StreamStatus) {
	s.mu.Lock()
	onStatus := s.onStatus
	s.mu.Unlock()

	if onStatus != nil {
		onStatus(status)
	}
}

func (s *Session) handleError(err error) {
	s.fail(err)
}

// fail reports err as unrecoverable and cancels the session.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	s.state = StateExpiring
	s.err = err
	onError := s.onError
	s.mu.Unlock()

	s.log.Warnf("Menu session failed: %v", err)
	if onError != nil {
		onError(false, err)
	}
	s.Cancel(nil)
}

func (s *Session) handleEnd() {
	s.mu.Lock()
	onEnd := s.onEnd
	s.mu.Unlock()

	if onEnd != nil {
		onEnd()
	}
}

// Cancel cancels the underlying stream, then runs the cancel callback and
// fn. The stream is cancelled at most once; later calls only re-run the
// callbacks.
func (s *Session) Cancel(fn func()) {
	s.mu.Lock()
	first := !s.streamCancelled
	s.streamCancelled = true
	s.state = StateCancelled
	timer := s.timer
	s.timer = nil
	onCancel := s.onCancel
	s.mu.Unlock()

	if first {
		if timer != nil {
			timer.Stop()
		}
		s.cancelCtx()
		s.stream.Cancel()
		close(s.done)
	}

	if onCancel != nil {
		onCancel()
	}
	if fn != nil {
		fn()
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fingerprint is the fingerprint of the menu the session currently tracks.
func (s *Session) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

// Menu is the base menu: the local menu supplied at construction or the
// catalog installed during bootstrap.
func (s *Session) Menu() *domain.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseMenu
}

func (s *Session) InitialMenuReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialMenuReady
}

func (s *Session) Established() time.Time {
	return s.established
}

// Done is closed once the session is cancelled for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Expired reports whether the session was cancelled by the lifetime check.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Err returns why the session ended, or nil after an explicit cancel.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
