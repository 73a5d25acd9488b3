package service

import (
	"context"
	"sync"
	"testing"

	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/pubsub"
	"storefront/menusync/internal/repository"
	"storefront/menusync/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testScope = domain.Scope{Partner: "acme", Location: "downtown"}

func newTestIndex(t *testing.T) (repository.CatalogIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return repository.NewRedisCatalogIndex(rdb, ""), mr
}

func testCatalog(fingerprint string) *domain.Catalog {
	return &domain.Catalog{
		Fingerprint: fingerprint,
		Version:     "v1",
		Sections: []domain.Section{
			{Name: "mains", Products: []domain.Product{
				{Kind: domain.KindItem, ID: "burger-01", Name: "Burger"},
				{Kind: domain.KindItem, ID: "fries-01", Name: "Fries"},
			}},
			{Name: "specials"},
		},
	}
}

// feedRecorder collects every message published on the topics it watches.
type feedRecorder struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func recordFeed(feed *pubsub.Feed, topics ...string) *feedRecorder {
	r := &feedRecorder{}
	for _, topic := range topics {
		feed.Subscribe(topic, func(_ context.Context, msg pubsub.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, msg)
		})
	}
	return r
}

func (r *feedRecorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msg := range r.messages {
		if msg.Topic == topic {
			n++
		}
	}
	return n
}

func (r *feedRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeStream struct {
	mu       sync.Mutex
	handlers session.Handlers
	listened int
	cancels  int
}

func (s *fakeStream) Listen(h session.Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
	s.listened++
}

func (s *fakeStream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeStream) current() session.Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers
}

func (s *fakeStream) emit(event domain.MenuEvent) {
	s.current().Data(event)
}

func (s *fakeStream) fail(err error) {
	s.current().Error(err)
}

func (s *fakeStream) isListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listened > 0
}

// fakeRemote is a scripted MenuAPI.
type fakeRemote struct {
	mu sync.Mutex

	retrieveReqs []domain.RetrieveRequest
	retrieveResp *domain.RetrieveResponse
	retrieveErr  error

	productCalls int
	productResp  *domain.ProductResponse
	productErr   error
	productGate  chan struct{}

	streamReqs []domain.StreamRequest
	streamErr  error
	streams    chan *fakeStream
}

func (f *fakeRemote) Retrieve(_ context.Context, req domain.RetrieveRequest) (*domain.RetrieveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveReqs = append(f.retrieveReqs, req)
	return f.retrieveResp, f.retrieveErr
}

func (f *fakeRemote) Product(ctx context.Context, _ domain.ProductRequest) (*domain.ProductResponse, error) {
	f.mu.Lock()
	f.productCalls++
	gate := f.productGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.productResp, f.productErr
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.productCalls
}

func (f *fakeRemote) Featured(_ context.Context, req domain.FeaturedRequest) (*domain.FeaturedResponse, error) {
	return &domain.FeaturedResponse{Products: []domain.Product{{Kind: domain.KindCombo, ID: "meal-01"}}}, nil
}

func (f *fakeRemote) Stream(_ context.Context, req domain.StreamRequest, opts ...session.Option) (*session.Session, error) {
	f.mu.Lock()
	f.streamReqs = append(f.streamReqs, req)
	err := f.streamErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stream := &fakeStream{}
	all := append([]session.Option{session.WithBaseMenu(req.BaseMenu, req.Fingerprint)}, opts...)
	sess := session.New(stream, all...)
	if f.streams != nil {
		f.streams <- stream
	}
	return sess, nil
}

func (f *fakeRemote) streamRequests() []domain.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StreamRequest(nil), f.streamReqs...)
}
