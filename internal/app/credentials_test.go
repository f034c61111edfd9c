package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

func newTestVault(t *testing.T, deviceStore DeviceStore, clock *fakeClock, pub *publisherStub) *CredentialVault {
	t.Helper()
	var events *SecurityEvents
	if pub != nil {
		events = NewSecurityEvents(pub, "security.events", zerolog.Nop())
	}
	vault, err := NewCredentialVault(deviceStore, 0, clock.Now, events, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCredentialVault returned error: %v", err)
	}
	return vault
}

func TestCredentialVault_RoundTripWithinMaxAge(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	vault := newTestVault(t, newTestStore(), clock, nil)

	if err := vault.Save(ctx, "08123456789", "5799"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	clock.Advance(30*24*time.Hour - time.Millisecond)

	cred, err := vault.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cred.PhoneNumber != "08123456789" || cred.PIN != "5799" || cred.Version != domain.StoredCredentialVersion {
		t.Fatalf("unexpected credential: %+v", cred)
	}
}

func TestCredentialVault_DiscardsExpiredCredential(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	deviceStore := newTestStore()
	pub := &publisherStub{}
	vault := newTestVault(t, deviceStore, clock, pub)

	if err := vault.Save(ctx, "08123456789", "5799"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	clock.Advance(30*24*time.Hour + time.Millisecond)

	if _, err := vault.Load(ctx); !errors.Is(err, domain.ErrNoStoredCredential) {
		t.Fatalf("expected ErrNoStoredCredential, got %v", err)
	}
	if _, found := deviceStore.Get(ctx, domain.KeyBiometricCredentials); found {
		t.Fatal("expected expired credential to be removed")
	}
	if !pub.has(domain.EventCredentialsPurged) {
		t.Fatal("expected purge event")
	}
}

func TestCredentialVault_DiscardsMalformedCredential(t *testing.T) {
	ctx := context.Background()
	deviceStore := newTestStore()
	vault := newTestVault(t, deviceStore, newFakeClock(), nil)

	payloads := []string{
		`not json`,
		`{"phoneNumber":"0812","pin":"12","timestamp":1,"version":"1"}`,
		`{"phoneNumber":"0812","pin":"1234","version":"1"}`,
		`{"phoneNumber":"","pin":"1234","timestamp":1,"version":"1"}`,
	}
	for _, payload := range payloads {
		deviceStore.Set(ctx, domain.KeyBiometricCredentials, payload)
		if _, err := vault.Load(ctx); !errors.Is(err, domain.ErrNoStoredCredential) {
			t.Fatalf("Load(%s) = %v, want ErrNoStoredCredential", payload, err)
		}
		if _, found := deviceStore.Get(ctx, domain.KeyBiometricCredentials); found {
			t.Fatalf("malformed credential %s was kept", payload)
		}
	}
}

func TestCredentialVault_ClearIfPhoneChanged(t *testing.T) {
	ctx := context.Background()
	vault := newTestVault(t, newTestStore(), newFakeClock(), nil)
	_ = vault.Save(ctx, "0811", "5799")

	cleared, err := vault.ClearIfPhoneChanged(ctx, "0811")
	if err != nil || cleared {
		t.Fatalf("same phone must keep credential, cleared=%v err=%v", cleared, err)
	}
	cleared, err = vault.ClearIfPhoneChanged(ctx, "0822")
	if err != nil || !cleared {
		t.Fatalf("expected credential to be cleared, cleared=%v err=%v", cleared, err)
	}
	if _, err := vault.Load(ctx); !errors.Is(err, domain.ErrNoStoredCredential) {
		t.Fatalf("expected empty slot, got %v", err)
	}
}
