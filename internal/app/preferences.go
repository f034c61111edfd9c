package app

import (
	"context"
	"fmt"

	"github.com/Egie02/Client-sub000/internal/domain"
)

// BiometricPreferences persists the member's biometric sign-in choice.
type BiometricPreferences struct {
	store DeviceStore
}

func NewBiometricPreferences(store DeviceStore) *BiometricPreferences {
	return &BiometricPreferences{store: store}
}

// Get returns the stored preference, defaulting to auto.
func (p *BiometricPreferences) Get(ctx context.Context) domain.BiometricPreference {
	raw, found := p.store.Get(ctx, domain.KeyBiometricPreference)
	if !found {
		return domain.BiometricAuto
	}
	pref, ok := domain.ParseBiometricPreference(raw)
	if !ok {
		return domain.BiometricAuto
	}
	return pref
}

func (p *BiometricPreferences) Set(ctx context.Context, pref domain.BiometricPreference) error {
	if _, ok := domain.ParseBiometricPreference(string(pref)); !ok {
		return fmt.Errorf("unknown biometric preference %q", pref)
	}
	if !p.store.Set(ctx, domain.KeyBiometricPreference, string(pref)) {
		return fmt.Errorf("save biometric preference: %w", domain.ErrStorageFailure)
	}
	return nil
}
