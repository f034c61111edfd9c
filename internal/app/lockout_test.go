package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

func TestLockoutTracker_LocksAtMaxAndClearsLazily(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	deviceStore := newTestStore()
	tracker := NewLockoutTracker(deviceStore, LoginScope(3, 30*time.Minute), clock.Now, zerolog.Nop())

	for i := 1; i <= 2; i++ {
		count, err := tracker.Increment(ctx)
		if err != nil || count != i {
			t.Fatalf("Increment #%d = %d, %v", i, count, err)
		}
		if status, _ := tracker.CheckLockout(ctx); status.IsLocked {
			t.Fatalf("locked after %d attempts", i)
		}
	}
	if _, err := tracker.Increment(ctx); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	status, err := tracker.CheckLockout(ctx)
	if err != nil || !status.IsLocked {
		t.Fatalf("expected lockout after max attempts, got %+v, %v", status, err)
	}
	if status.Remaining != 30*time.Minute {
		t.Fatalf("expected full lockout window, got %s", status.Remaining)
	}

	clock.Advance(30 * time.Minute)
	status, err = tracker.CheckLockout(ctx)
	if err != nil || status.IsLocked {
		t.Fatalf("expected lockout to clear at lockoutUntil, got %+v, %v", status, err)
	}
	if got := tracker.Attempts(ctx); got != 0 {
		t.Fatalf("expected counter reset to 0, got %d", got)
	}
	if _, found := deviceStore.Get(ctx, domain.KeyLoginLockoutUntil); found {
		t.Fatal("expected lockout key removed")
	}
}

func TestLockoutTracker_ResetAndIndependentScopes(t *testing.T) {
	ctx := context.Background()
	deviceStore := newTestStore()
	login := NewLockoutTracker(deviceStore, LoginScope(3, time.Minute), nil, zerolog.Nop())
	setup := NewLockoutTracker(deviceStore, FirstTimePinScope(3, 5*time.Minute), nil, zerolog.Nop())

	_, _ = login.Increment(ctx)
	_, _ = login.Increment(ctx)
	_, _ = setup.Increment(ctx)

	if login.Attempts(ctx) != 2 || setup.Attempts(ctx) != 1 {
		t.Fatalf("scopes share state: login=%d setup=%d", login.Attempts(ctx), setup.Attempts(ctx))
	}
	if err := login.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if login.Attempts(ctx) != 0 || setup.Attempts(ctx) != 1 {
		t.Fatalf("reset leaked across scopes: login=%d setup=%d", login.Attempts(ctx), setup.Attempts(ctx))
	}
	if login.Remaining(2) != 1 || login.Remaining(5) != 0 {
		t.Fatal("unexpected remaining attempts")
	}
}

func TestLockoutTracker_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	deviceStore := newTestStore()
	first := NewLockoutTracker(deviceStore, LoginScope(2, time.Hour), clock.Now, zerolog.Nop())
	_, _ = first.Increment(ctx)
	_, _ = first.Increment(ctx)

	second := NewLockoutTracker(deviceStore, LoginScope(2, time.Hour), clock.Now, zerolog.Nop())
	if status, _ := second.CheckLockout(ctx); !status.IsLocked {
		t.Fatal("expected lockout to be durable across tracker instances")
	}
}

func TestLockoutTracker_StorageFailure(t *testing.T) {
	ctx := context.Background()
	tracker := NewLockoutTracker(&stubStore{DeviceStore: newTestStore(), failMultiSet: true}, LoginScope(3, time.Minute), nil, zerolog.Nop())

	if _, err := tracker.Increment(ctx); !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}

	unreadable := NewLockoutTracker(&stubStore{DeviceStore: newTestStore(), failMultiGet: true}, LoginScope(3, time.Minute), nil, zerolog.Nop())
	if _, err := unreadable.CheckLockout(ctx); !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure on unreadable state, got %v", err)
	}
}
