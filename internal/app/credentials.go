/**
 * @description
 * CredentialVault owns the single stored credential slot used for biometric
 * sign-in. The slot is routed to the secure backend by its key name.
 *
 * Key features:
 * - JSON shape is checked against a schema on every read.
 * - Stale (older than the maximum age) or malformed entries are discarded.
 * - Switching phone numbers drops the previous member's credential.
 *
 * @dependencies
 * - github.com/xeipuuv/gojsonschema: credential shape validation.
 */
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultCredentialMaxAge bounds how long a stored credential may be reused.
const DefaultCredentialMaxAge = 30 * 24 * time.Hour

const storedCredentialSchema = `{
	"type": "object",
	"required": ["phoneNumber", "pin", "timestamp", "version"],
	"properties": {
		"phoneNumber": {"type": "string", "minLength": 1},
		"pin": {"type": "string", "pattern": "^[0-9]{4}$"},
		"timestamp": {"type": "integer", "minimum": 0},
		"version": {"type": "string", "minLength": 1}
	}
}`

type CredentialVault struct {
	store  DeviceStore
	schema *gojsonschema.Schema
	maxAge time.Duration
	now    Clock
	events *SecurityEvents
	logger zerolog.Logger
}

// NewCredentialVault compiles the credential schema. maxAge <= 0 uses the default.
func NewCredentialVault(store DeviceStore, maxAge time.Duration, now Clock, events *SecurityEvents, logger zerolog.Logger) (*CredentialVault, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(storedCredentialSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile credential schema: %w", err)
	}
	if maxAge <= 0 {
		maxAge = DefaultCredentialMaxAge
	}
	if now == nil {
		now = systemClock
	}
	return &CredentialVault{
		store:  store,
		schema: schema,
		maxAge: maxAge,
		now:    now,
		events: events,
		logger: logger.With().Str("component", "credential_vault").Logger(),
	}, nil
}

// Save overwrites the slot with phone and pin.
func (v *CredentialVault) Save(ctx context.Context, phone, pin string) error {
	cred := domain.StoredCredential{
		PhoneNumber: strings.TrimSpace(phone),
		PIN:         pin,
		Timestamp:   v.now().UnixMilli(),
		Version:     domain.StoredCredentialVersion,
	}
	payload, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if !v.store.Set(ctx, domain.KeyBiometricCredentials, string(payload)) {
		return fmt.Errorf("save credential: %w", domain.ErrStorageFailure)
	}
	return nil
}

// Load returns the stored credential. A missing, malformed or expired entry
// yields ErrNoStoredCredential; the latter two are removed.
func (v *CredentialVault) Load(ctx context.Context) (*domain.StoredCredential, error) {
	raw, found := v.store.Get(ctx, domain.KeyBiometricCredentials)
	if !found || raw == "" {
		return nil, domain.ErrNoStoredCredential
	}

	cred, reason := v.decode(raw)
	if reason != "" {
		v.discard(ctx, "", reason)
		return nil, domain.ErrNoStoredCredential
	}
	if v.now().Sub(cred.StoredAt()) > v.maxAge {
		v.discard(ctx, cred.PhoneNumber, "expired")
		return nil, domain.ErrNoStoredCredential
	}
	return cred, nil
}

func (v *CredentialVault) decode(raw string) (*domain.StoredCredential, string) {
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, "unparseable"
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			v.logger.Debug().Str("field", desc.Field()).Str("problem", desc.Description()).Msg("stored credential failed validation")
		}
		return nil, "invalid_shape"
	}
	var cred domain.StoredCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, "unparseable"
	}
	return &cred, ""
}

func (v *CredentialVault) discard(ctx context.Context, phone, reason string) {
	if !v.store.Remove(ctx, domain.KeyBiometricCredentials) {
		v.logger.Warn().Str("reason", reason).Msg("failed to discard stored credential")
		return
	}
	v.logger.Info().Str("reason", reason).Msg("stored credential discarded")
	v.events.Emit(ctx, domain.EventCredentialsPurged, phone, reason)
}

// Clear empties the slot.
func (v *CredentialVault) Clear(ctx context.Context) error {
	if !v.store.Remove(ctx, domain.KeyBiometricCredentials) {
		return fmt.Errorf("clear credential: %w", domain.ErrStorageFailure)
	}
	return nil
}

// ClearIfPhoneChanged drops a credential that belongs to another phone number
// and reports whether it did.
func (v *CredentialVault) ClearIfPhoneChanged(ctx context.Context, phone string) (bool, error) {
	cred, err := v.Load(ctx)
	if err != nil {
		return false, nil
	}
	if cred.PhoneNumber == strings.TrimSpace(phone) {
		return false, nil
	}
	if err := v.Clear(ctx); err != nil {
		return false, err
	}
	v.events.Emit(ctx, domain.EventCredentialsPurged, cred.PhoneNumber, "phone_changed")
	return true, nil
}

// PurgeStale runs Load for its discard side effect and reports whether a
// usable credential remains.
func (v *CredentialVault) PurgeStale(ctx context.Context) bool {
	_, err := v.Load(ctx)
	return err == nil
}
