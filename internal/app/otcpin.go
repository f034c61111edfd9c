/**
 * @description
 * OTCPIN permission: a pure decision over the user record and two persisted
 * sentinels, plus one shared TTL cache in front of it.
 *
 * Key features:
 * - Priority: user data, storage granted, storage disabled, default deny.
 * - Cache entries expire after the TTL or when the user identity changes.
 * - One batched storage read per miss; concurrent misses share it.
 *
 * @dependencies
 * - golang.org/x/sync/singleflight: collapses concurrent cache misses.
 */
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultOTCPINTTL is how long a computed status is reused.
const DefaultOTCPINTTL = 5 * time.Minute

// DetermineOTCPIN decides the permission. Absence of evidence denies it.
func DetermineOTCPIN(userAsserted, storageGranted, storageDisabled *string) domain.OTCPINStatus {
	if userAsserted != nil {
		switch strings.ToUpper(strings.TrimSpace(*userAsserted)) {
		case "GRANTED", "ENABLED":
			return domain.OTCPINStatus{Granted: true, Source: domain.OTCPINSourceUserData, Value: *userAsserted}
		case "DISABLED":
			return domain.OTCPINStatus{Granted: false, Source: domain.OTCPINSourceUserData, Value: *userAsserted}
		}
	}
	if storageGranted != nil && *storageGranted == domain.SentinelTrue {
		return domain.OTCPINStatus{Granted: true, Source: domain.OTCPINSourceStorageGranted, Value: *storageGranted}
	}
	if storageDisabled != nil && *storageDisabled == domain.SentinelTrue {
		return domain.OTCPINStatus{Granted: false, Source: domain.OTCPINSourceStorageDisabled, Value: *storageDisabled}
	}
	return domain.OTCPINStatus{Granted: false, Source: domain.OTCPINSourceDefault}
}

// OTCPINInput is what a caller knows about the current member.
type OTCPINInput struct {
	UserID  string
	Profile map[string]any
}

type otcpinEntry struct {
	status     domain.OTCPINStatus
	identity   string
	computedAt time.Time
}

// OTCPINCache is the single shared view of the permission. Construct one per
// process and share it.
type OTCPINCache struct {
	store  DeviceStore
	ttl    time.Duration
	now    Clock
	logger zerolog.Logger
	group  singleflight.Group

	mu         sync.Mutex
	entry      *otcpinEntry
	generation uint64
}

// NewOTCPINCache creates the cache. ttl <= 0 uses DefaultOTCPINTTL.
func NewOTCPINCache(store DeviceStore, ttl time.Duration, now Clock, logger zerolog.Logger) *OTCPINCache {
	if ttl <= 0 {
		ttl = DefaultOTCPINTTL
	}
	if now == nil {
		now = systemClock
	}
	return &OTCPINCache{
		store:  store,
		ttl:    ttl,
		now:    now,
		logger: logger.With().Str("component", "otcpin_cache").Logger(),
	}
}

// Subscribe registers Invalidate on bus and returns the unregister function.
func (c *OTCPINCache) Subscribe(bus *InvalidationBus) func() {
	return bus.Register("otcpin_cache", c.Invalidate)
}

func identityOf(in OTCPINInput) string {
	asserted := "-"
	if v := ExtractOTCPIN(in.Profile); v != nil {
		asserted = "=" + *v
	}
	return strings.TrimSpace(in.UserID) + "|" + asserted
}

// Read returns the cached status or recomputes it.
func (c *OTCPINCache) Read(ctx context.Context, in OTCPINInput) domain.OTCPINStatus {
	identity := identityOf(in)

	c.mu.Lock()
	if e := c.entry; e != nil && e.identity == identity && c.now().Sub(e.computedAt) < c.ttl {
		status := e.status
		c.mu.Unlock()
		return status
	}
	generation := c.generation
	c.mu.Unlock()

	key := fmt.Sprintf("%d:%s", generation, identity)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		status, ok := c.compute(ctx, in)
		if ok {
			c.mu.Lock()
			if c.generation == generation {
				c.entry = &otcpinEntry{status: status, identity: identity, computedAt: c.now()}
			}
			c.mu.Unlock()
		}
		return status, nil
	})
	return v.(domain.OTCPINStatus)
}

// compute performs the single batched read. ok is false when storage was
// unreadable and the result must not be cached.
func (c *OTCPINCache) compute(ctx context.Context, in OTCPINInput) (domain.OTCPINStatus, bool) {
	asserted := ExtractOTCPIN(in.Profile)
	values, ok := c.store.MultiGet(ctx, []string{domain.KeyOTCPINGranted, domain.KeyOTCPINDisabled})

	var granted, disabled *string
	if v, found := values[domain.KeyOTCPINGranted]; found {
		granted = &v
	}
	if v, found := values[domain.KeyOTCPINDisabled]; found {
		disabled = &v
	}

	status := DetermineOTCPIN(asserted, granted, disabled)
	if !ok && status.Source == domain.OTCPINSourceDefault {
		c.logger.Warn().Msg("permission flags unreadable, denying")
		return domain.OTCPINStatus{Granted: false, Source: domain.OTCPINSourceError}, false
	}
	c.logger.Debug().Bool("granted", status.Granted).Str("source", string(status.Source)).Msg("permission computed")
	return status, ok
}

// Invalidate drops the cached entry; in-flight computations are not stored.
func (c *OTCPINCache) Invalidate(reason string) {
	c.mu.Lock()
	c.entry = nil
	c.generation++
	c.mu.Unlock()
	c.logger.Debug().Str("reason", reason).Msg("permission cache invalidated")
}

// RecordServerStatus persists the server-asserted value as storage sentinels
// and invalidates the cache.
func (c *OTCPINCache) RecordServerStatus(ctx context.Context, value string) error {
	var ok bool
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "GRANTED", "ENABLED":
		ok = c.store.Set(ctx, domain.KeyOTCPINGranted, domain.SentinelTrue) &&
			c.store.Remove(ctx, domain.KeyOTCPINDisabled)
	case "DISABLED":
		ok = c.store.Set(ctx, domain.KeyOTCPINDisabled, domain.SentinelTrue) &&
			c.store.Remove(ctx, domain.KeyOTCPINGranted)
	default:
		ok = c.store.MultiRemove(ctx, []string{domain.KeyOTCPINGranted, domain.KeyOTCPINDisabled})
	}
	c.Invalidate("server_status")
	if !ok {
		return fmt.Errorf("record permission: %w", domain.ErrStorageFailure)
	}
	return nil
}
