package app

import (
	"sync"

	"github.com/rs/zerolog"
)

// InvalidationBus is the process-wide registry of cache invalidation hooks.
// Operations that may change a server-asserted permission call Notify.
type InvalidationBus struct {
	mu     sync.RWMutex
	nextID int
	hooks  map[int]invalidationHook
	logger zerolog.Logger
}

type invalidationHook struct {
	name string
	fn   func(reason string)
}

func NewInvalidationBus(logger zerolog.Logger) *InvalidationBus {
	return &InvalidationBus{
		hooks:  make(map[int]invalidationHook),
		logger: logger.With().Str("component", "invalidation_bus").Logger(),
	}
}

// Register adds a hook and returns its unregister function.
func (b *InvalidationBus) Register(name string, fn func(reason string)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.hooks[id] = invalidationHook{name: name, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.hooks, id)
			b.mu.Unlock()
		})
	}
}

// Notify runs every registered hook with reason. Hooks run outside the lock
// so they may register or unregister others.
func (b *InvalidationBus) Notify(reason string) {
	b.mu.RLock()
	hooks := make([]invalidationHook, 0, len(b.hooks))
	for _, h := range b.hooks {
		hooks = append(hooks, h)
	}
	b.mu.RUnlock()

	for _, h := range hooks {
		h.fn(reason)
	}
	b.logger.Debug().Str("reason", reason).Int("hooks", len(hooks)).Msg("invalidation broadcast")
}
