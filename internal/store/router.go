/**
 * @description
 * Router decides per key whether a value lives in the secure backend or the
 * general store, and gives both the same contract. Backend faults never
 * escape: callers get false / not-found and choose their own fallback.
 *
 * Key features:
 * - Secure routing by a fixed substring allow-list (credentials, tokens, sealed blobs).
 * - Graceful degradation when no secure backend is available.
 * - Batch operations issue one call per destination store.
 *
 * @dependencies
 * - github.com/rs/zerolog: structured logging of swallowed faults.
 */
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSecureMarkers are matched case-insensitively against keys.
var DefaultSecureMarkers = []string{"credential", "token", "encrypted", "secret"}

// Router is the single entry point for device persistence.
type Router struct {
	general KV
	secure  SecureBackend
	markers []string
	timeout time.Duration
	logger  zerolog.Logger
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithOperationTimeout bounds every backend call.
func WithOperationTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.timeout = d }
}

// WithSecureMarkers replaces the secure key allow-list.
func WithSecureMarkers(markers ...string) RouterOption {
	return func(r *Router) {
		r.markers = make([]string, 0, len(markers))
		for _, m := range markers {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				r.markers = append(r.markers, m)
			}
		}
	}
}

// NewRouter selects the secure backend once; a nil or unavailable backend
// sends every key to general.
func NewRouter(general KV, secure SecureBackend, logger zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		general: general,
		markers: DefaultSecureMarkers,
		logger:  logger.With().Str("component", "storage_router").Logger(),
	}
	if secure != nil && secure.Available() {
		r.secure = secure
	}
	for _, opt := range opts {
		opt(r)
	}
	backend := "none"
	if r.secure != nil {
		backend = r.secure.Name()
	}
	r.logger.Info().Str("secure_backend", backend).Msg("storage router ready")
	return r
}

// SecureAvailable reports whether secure routing is active.
func (r *Router) SecureAvailable() bool {
	return r.secure != nil
}

// IsSecureKey reports whether key matches the secure allow-list.
func (r *Router) IsSecureKey(key string) bool {
	lower := strings.ToLower(key)
	for _, m := range r.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (r *Router) storeFor(key string) (KV, string) {
	if r.secure != nil && r.IsSecureKey(key) {
		return r.secure, "secure"
	}
	return r.general, "general"
}

func (r *Router) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, func() {}
}

// Set writes one value.
func (r *Router) Set(ctx context.Context, key, value string) bool {
	kv, dest := r.storeFor(key)
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := kv.Set(ctx, key, value); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Str("store", dest).Msg("set failed")
		return false
	}
	return true
}

// Get reads one value; found is false when missing or unreadable.
func (r *Router) Get(ctx context.Context, key string) (string, bool) {
	kv, dest := r.storeFor(key)
	ctx, cancel := r.bound(ctx)
	defer cancel()

	value, found, err := kv.Get(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Str("store", dest).Msg("get failed")
		return "", false
	}
	return value, found
}

// Remove deletes one value.
func (r *Router) Remove(ctx context.Context, key string) bool {
	kv, dest := r.storeFor(key)
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := kv.Delete(ctx, key); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Str("store", dest).Msg("remove failed")
		return false
	}
	return true
}

func (r *Router) partitionKeys(keys []string) (secure, general []string) {
	for _, k := range keys {
		if r.secure != nil && r.IsSecureKey(k) {
			secure = append(secure, k)
		} else {
			general = append(general, k)
		}
	}
	return secure, general
}

// MultiGet reads keys with at most one call per destination store. ok is
// false when any destination failed; values read from the others are kept.
func (r *Router) MultiGet(ctx context.Context, keys []string) (map[string]string, bool) {
	secureKeys, generalKeys := r.partitionKeys(keys)
	ctx, cancel := r.bound(ctx)
	defer cancel()

	out := make(map[string]string, len(keys))
	ok := true
	if len(secureKeys) > 0 {
		values, err := r.secure.MultiGet(ctx, secureKeys)
		if err != nil {
			r.logger.Warn().Err(err).Strs("keys", secureKeys).Str("store", "secure").Msg("multi-get failed")
			ok = false
		}
		for k, v := range values {
			out[k] = v
		}
	}
	if len(generalKeys) > 0 {
		values, err := r.general.MultiGet(ctx, generalKeys)
		if err != nil {
			r.logger.Warn().Err(err).Strs("keys", generalKeys).Str("store", "general").Msg("multi-get failed")
			ok = false
		}
		for k, v := range values {
			out[k] = v
		}
	}
	return out, ok
}

// MultiSet writes pairs with at most one call per destination store.
func (r *Router) MultiSet(ctx context.Context, pairs map[string]string) bool {
	securePairs := map[string]string{}
	generalPairs := map[string]string{}
	for k, v := range pairs {
		if r.secure != nil && r.IsSecureKey(k) {
			securePairs[k] = v
		} else {
			generalPairs[k] = v
		}
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	ok := true
	if len(securePairs) > 0 {
		if err := r.secure.MultiSet(ctx, securePairs); err != nil {
			r.logger.Warn().Err(err).Int("count", len(securePairs)).Str("store", "secure").Msg("multi-set failed")
			ok = false
		}
	}
	if len(generalPairs) > 0 {
		if err := r.general.MultiSet(ctx, generalPairs); err != nil {
			r.logger.Warn().Err(err).Int("count", len(generalPairs)).Str("store", "general").Msg("multi-set failed")
			ok = false
		}
	}
	return ok
}

// MultiRemove deletes keys with at most one call per destination store.
func (r *Router) MultiRemove(ctx context.Context, keys []string) bool {
	secureKeys, generalKeys := r.partitionKeys(keys)
	ctx, cancel := r.bound(ctx)
	defer cancel()

	ok := true
	if len(secureKeys) > 0 {
		if err := r.secure.MultiDelete(ctx, secureKeys); err != nil {
			r.logger.Warn().Err(err).Strs("keys", secureKeys).Str("store", "secure").Msg("multi-remove failed")
			ok = false
		}
	}
	if len(generalKeys) > 0 {
		if err := r.general.MultiDelete(ctx, generalKeys); err != nil {
			r.logger.Warn().Err(err).Strs("keys", generalKeys).Str("store", "general").Msg("multi-remove failed")
			ok = false
		}
	}
	return ok
}
