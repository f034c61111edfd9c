/**
 * @description
 * Secure backend that seals every value with XChaCha20-Poly1305 before it
 * reaches its inner store. The sealing key is derived with HKDF from a device
 * master key supplied by the platform keystore; without that key the backend
 * reports itself unavailable and the router falls back to the general store.
 *
 * @dependencies
 * - golang.org/x/crypto/chacha20poly1305, golang.org/x/crypto/hkdf
 */
package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedKeyInfo = "member-secure-store v1"

// SealedBackend encrypts values at rest. The storage key is bound as
// associated data so a ciphertext cannot be replayed under another key.
type SealedBackend struct {
	inner KV
	aead  cipher.AEAD
}

// NewSealedBackend derives the sealing key from masterKey (at least 32 bytes).
func NewSealedBackend(inner KV, masterKey []byte) (*SealedBackend, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is nil")
	}
	if len(masterKey) < chacha20poly1305.KeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes", chacha20poly1305.KeySize)
	}

	dek := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealedKeyInfo)), dek); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, err
	}
	return &SealedBackend{inner: inner, aead: aead}, nil
}

func (s *SealedBackend) Name() string { return "sealed" }

func (s *SealedBackend) Available() bool {
	return s != nil && s.aead != nil
}

func (s *SealedBackend) Get(ctx context.Context, key string) (string, bool, error) {
	raw, found, err := s.inner.Get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	plain, err := s.open(key, raw)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (s *SealedBackend) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedBackend) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedBackend) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	raw, err := s.inner.MultiGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		plain, err := s.open(k, v)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

func (s *SealedBackend) MultiSet(ctx context.Context, pairs map[string]string) error {
	sealed := make(map[string]string, len(pairs))
	for k, v := range pairs {
		ct, err := s.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = ct
	}
	return s.inner.MultiSet(ctx, sealed)
}

func (s *SealedBackend) MultiDelete(ctx context.Context, keys []string) error {
	return s.inner.MultiDelete(ctx, keys)
}

func (s *SealedBackend) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *SealedBackend) open(key, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid sealed encoding: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plain), nil
}
