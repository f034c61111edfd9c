package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

func strPtr(s string) *string { return &s }

func TestDetermineOTCPIN_Priority(t *testing.T) {
	tests := []struct {
		name     string
		user     *string
		granted  *string
		disabled *string
		want     domain.OTCPINStatus
	}{
		{name: "user granted beats storage", user: strPtr("GRANTED"), disabled: strPtr("true"), want: domain.OTCPINStatus{Granted: true, Source: domain.OTCPINSourceUserData, Value: "GRANTED"}},
		{name: "user enabled any case", user: strPtr("enabled"), want: domain.OTCPINStatus{Granted: true, Source: domain.OTCPINSourceUserData, Value: "enabled"}},
		{name: "user disabled beats storage granted", user: strPtr("Disabled"), granted: strPtr("true"), want: domain.OTCPINStatus{Source: domain.OTCPINSourceUserData, Value: "Disabled"}},
		{name: "unknown user value falls through", user: strPtr("PENDING"), granted: strPtr("true"), want: domain.OTCPINStatus{Granted: true, Source: domain.OTCPINSourceStorageGranted, Value: "true"}},
		{name: "storage granted", granted: strPtr("true"), disabled: strPtr("true"), want: domain.OTCPINStatus{Granted: true, Source: domain.OTCPINSourceStorageGranted, Value: "true"}},
		{name: "storage disabled", granted: strPtr("false"), disabled: strPtr("true"), want: domain.OTCPINStatus{Source: domain.OTCPINSourceStorageDisabled, Value: "true"}},
		{name: "nothing denies", want: domain.OTCPINStatus{Source: domain.OTCPINSourceDefault}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetermineOTCPIN(tc.user, tc.granted, tc.disabled); got != tc.want {
				t.Fatalf("DetermineOTCPIN = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDetermineOTCPIN_UserGrantedAlwaysWins(t *testing.T) {
	values := []*string{nil, strPtr("true"), strPtr("false"), strPtr("")}
	for _, g := range values {
		for _, d := range values {
			got := DetermineOTCPIN(strPtr("GRANTED"), g, d)
			if !got.Granted || got.Source != domain.OTCPINSourceUserData {
				t.Fatalf("expected user_data grant, got %+v", got)
			}
		}
	}
}

func TestExtractOTCPIN_Order(t *testing.T) {
	tests := []struct {
		name    string
		profile map[string]any
		want    *string
	}{
		{name: "top level exact", profile: map[string]any{"OTCPIN": "GRANTED", "otcpin": "DISABLED"}, want: strPtr("GRANTED")},
		{name: "null skipped", profile: map[string]any{"OTCPIN": nil, "otcpin": "DISABLED"}, want: strPtr("DISABLED")},
		{name: "permissions", profile: map[string]any{"permissions": map[string]any{"OTCPIN": "ENABLED"}}, want: strPtr("ENABLED")},
		{name: "data array", profile: map[string]any{"data": []any{map[string]any{"OTCPIN": "GRANTED"}}}, want: strPtr("GRANTED")},
		{name: "empty data array", profile: map[string]any{"data": []any{}}},
		{name: "absent", profile: map[string]any{"name": "Ana"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractOTCPIN(tc.profile)
			if (got == nil) != (tc.want == nil) || (got != nil && *got != *tc.want) {
				t.Fatalf("ExtractOTCPIN = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOTCPINCache_TTLBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	counting := &stubStore{DeviceStore: newTestStore()}
	counting.Set(ctx, domain.KeyOTCPINGranted, domain.SentinelTrue)
	cache := NewOTCPINCache(counting, 5*time.Minute, clock.Now, zerolog.Nop())
	in := OTCPINInput{UserID: "u-1"}

	if got := cache.Read(ctx, in); !got.Granted || got.Source != domain.OTCPINSourceStorageGranted {
		t.Fatalf("unexpected status %+v", got)
	}
	if counting.reads() != 1 {
		t.Fatalf("expected one batched read per miss, got %d", counting.reads())
	}

	clock.Advance(5*time.Minute - time.Millisecond)
	cache.Read(ctx, in)
	if counting.reads() != 1 {
		t.Fatalf("expected cache hit just inside the TTL, got %d reads", counting.reads())
	}

	clock.Advance(2 * time.Millisecond)
	cache.Read(ctx, in)
	if counting.reads() != 2 {
		t.Fatalf("expected recomputation just past the TTL, got %d reads", counting.reads())
	}
}

func TestOTCPINCache_IdentityChangeAndInvalidation(t *testing.T) {
	ctx := context.Background()
	counting := &stubStore{DeviceStore: newTestStore()}
	cache := NewOTCPINCache(counting, time.Hour, nil, zerolog.Nop())
	bus := NewInvalidationBus(zerolog.Nop())
	unregister := cache.Subscribe(bus)

	cache.Read(ctx, OTCPINInput{UserID: "u-1"})
	cache.Read(ctx, OTCPINInput{UserID: "u-2"})
	if counting.reads() != 2 {
		t.Fatalf("expected identity change to force a read, got %d", counting.reads())
	}

	granted := cache.Read(ctx, OTCPINInput{UserID: "u-2", Profile: map[string]any{"OTCPIN": "GRANTED"}})
	if !granted.Granted || counting.reads() != 3 {
		t.Fatalf("expected new profile data to recompute, got %+v after %d reads", granted, counting.reads())
	}

	bus.Notify("login")
	cache.Read(ctx, OTCPINInput{UserID: "u-2", Profile: map[string]any{"OTCPIN": "GRANTED"}})
	if counting.reads() != 4 {
		t.Fatalf("expected invalidation to force a read, got %d", counting.reads())
	}

	unregister()
	bus.Notify("login")
	cache.Read(ctx, OTCPINInput{UserID: "u-2", Profile: map[string]any{"OTCPIN": "GRANTED"}})
	if counting.reads() != 4 {
		t.Fatalf("unregistered hook still fired, got %d reads", counting.reads())
	}
}

func TestOTCPINCache_CollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	counting := &stubStore{DeviceStore: newTestStore(), blockMultiGet: release}
	cache := NewOTCPINCache(counting, time.Minute, nil, zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]domain.OTCPINStatus, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Read(ctx, OTCPINInput{UserID: "u-1"})
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if counting.reads() != 1 {
		t.Fatalf("expected concurrent misses to share one read, got %d", counting.reads())
	}
	for _, r := range results {
		if r.Source != domain.OTCPINSourceDefault {
			t.Fatalf("unexpected status %+v", r)
		}
	}
}

func TestOTCPINCache_UnreadableStorageIsNotCached(t *testing.T) {
	ctx := context.Background()
	counting := &stubStore{DeviceStore: newTestStore(), failMultiGet: true}
	cache := NewOTCPINCache(counting, time.Minute, nil, zerolog.Nop())

	got := cache.Read(ctx, OTCPINInput{UserID: "u-1"})
	if got.Granted || got.Source != domain.OTCPINSourceError {
		t.Fatalf("expected fail-closed error status, got %+v", got)
	}
	cache.Read(ctx, OTCPINInput{UserID: "u-1"})
	if counting.reads() != 2 {
		t.Fatalf("expected error results to be recomputed, got %d reads", counting.reads())
	}
}

func TestOTCPINCache_RecordServerStatus(t *testing.T) {
	ctx := context.Background()
	deviceStore := newTestStore()
	cache := NewOTCPINCache(deviceStore, time.Minute, nil, zerolog.Nop())

	if err := cache.RecordServerStatus(ctx, "granted"); err != nil {
		t.Fatalf("RecordServerStatus returned error: %v", err)
	}
	if got := cache.Read(ctx, OTCPINInput{UserID: "u-1"}); got.Source != domain.OTCPINSourceStorageGranted {
		t.Fatalf("expected storage grant, got %+v", got)
	}
	if err := cache.RecordServerStatus(ctx, "DISABLED"); err != nil {
		t.Fatalf("RecordServerStatus returned error: %v", err)
	}
	if got := cache.Read(ctx, OTCPINInput{UserID: "u-1"}); got.Granted || got.Source != domain.OTCPINSourceStorageDisabled {
		t.Fatalf("expected storage disable, got %+v", got)
	}
}
