package app

import (
	"context"
	"sync"
	"time"

	"github.com/Egie02/Client-sub000/internal/store"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() *store.Router {
	return store.NewRouter(store.NewMemoryKV(), nil, zerolog.Nop())
}

// stubStore wraps a DeviceStore and can fail selected operations.
type stubStore struct {
	DeviceStore

	mu              sync.Mutex
	multiGetCalls   int
	failMultiGet    bool
	failMultiSet    bool
	failMultiRemove bool
	blockMultiGet   chan struct{}
}

func (s *stubStore) MultiGet(ctx context.Context, keys []string) (map[string]string, bool) {
	s.mu.Lock()
	s.multiGetCalls++
	fail := s.failMultiGet
	block := s.blockMultiGet
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if fail {
		return map[string]string{}, false
	}
	return s.DeviceStore.MultiGet(ctx, keys)
}

func (s *stubStore) MultiSet(ctx context.Context, pairs map[string]string) bool {
	if s.failMultiSet {
		return false
	}
	return s.DeviceStore.MultiSet(ctx, pairs)
}

func (s *stubStore) MultiRemove(ctx context.Context, keys []string) bool {
	if s.failMultiRemove {
		return false
	}
	return s.DeviceStore.MultiRemove(ctx, keys)
}

func (s *stubStore) reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.multiGetCalls
}

type recordedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *publisherStub) has(routingKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.routingKey == routingKey {
			return true
		}
	}
	return false
}
