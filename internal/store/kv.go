/**
 * @description
 * Key-value contracts for the device stores. A general store holds plain
 * persistent state (flags, counters, timestamps); a secure backend holds
 * credentials and tokens when the platform provides one.
 *
 * @dependencies
 * - context: every call is fallible I/O and may be bounded by the router.
 */
package store

import (
	"context"
	"errors"
)

var ErrSecureStoreUnavailable = errors.New("secure store unavailable on this device")

// KV is a string key-value store. Get reports a missing key with found=false
// and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	MultiSet(ctx context.Context, pairs map[string]string) error
	MultiDelete(ctx context.Context, keys []string) error
}

// SecureBackend is a capability-checked secure store.
type SecureBackend interface {
	KV
	Name() string
	Available() bool
}

// SelectSecureBackend returns the first available candidate, or an
// unavailable backend so that every key falls back to the general store.
func SelectSecureBackend(candidates ...SecureBackend) SecureBackend {
	for _, c := range candidates {
		if c != nil && c.Available() {
			return c
		}
	}
	return UnavailableSecureBackend{}
}

// UnavailableSecureBackend is selected on platforms without a secure store.
type UnavailableSecureBackend struct{}

func (UnavailableSecureBackend) Name() string    { return "unavailable" }
func (UnavailableSecureBackend) Available() bool { return false }

func (UnavailableSecureBackend) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, ErrSecureStoreUnavailable
}

func (UnavailableSecureBackend) Set(ctx context.Context, key, value string) error {
	return ErrSecureStoreUnavailable
}

func (UnavailableSecureBackend) Delete(ctx context.Context, key string) error {
	return ErrSecureStoreUnavailable
}

func (UnavailableSecureBackend) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	return nil, ErrSecureStoreUnavailable
}

func (UnavailableSecureBackend) MultiSet(ctx context.Context, pairs map[string]string) error {
	return ErrSecureStoreUnavailable
}

func (UnavailableSecureBackend) MultiDelete(ctx context.Context, keys []string) error {
	return ErrSecureStoreUnavailable
}
