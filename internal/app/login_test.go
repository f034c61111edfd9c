package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/Egie02/Client-sub000/pkg/memberclient"
	"github.com/rs/zerolog"
)

type memberClientStub struct {
	pins        map[string]string
	user        map[string]any
	verifyErrs  []error
	verifyCalls int
	changeCalls int
	changeErr   error
	profile     map[string]any
}

func (m *memberClientStub) VerifyCredentials(ctx context.Context, phone, pin string) (*memberclient.VerifyResponse, error) {
	m.verifyCalls++
	if len(m.verifyErrs) > 0 {
		err := m.verifyErrs[0]
		m.verifyErrs = m.verifyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.pins[phone] != pin {
		return nil, memberclient.ErrInvalidCredentials
	}
	return &memberclient.VerifyResponse{Success: true, Token: "token-" + phone, User: m.user}, nil
}

func (m *memberClientStub) GetProfile(ctx context.Context, token string) (map[string]any, error) {
	return m.profile, nil
}

func (m *memberClientStub) ChangePIN(ctx context.Context, token, phone, currentPIN, newPIN string) error {
	m.changeCalls++
	if m.changeErr != nil {
		return m.changeErr
	}
	if m.pins[phone] != currentPIN {
		return memberclient.ErrInvalidCredentials
	}
	m.pins[phone] = newPIN
	return nil
}

type loginFixture struct {
	coordinator *LoginCoordinator
	client      *memberClientStub
	store       *stubStore
	clock       *fakeClock
	vault       *CredentialVault
	workflow    *FirstTimePinWorkflow
	attempts    *LockoutTracker
	sensor      *sensorStub
	publisher   *publisherStub
}

func newLoginFixture(t *testing.T, client *memberClientStub) *loginFixture {
	t.Helper()
	logger := zerolog.Nop()
	clock := newFakeClock()
	deviceStore := &stubStore{DeviceStore: newTestStore()}
	publisher := &publisherStub{}
	events := NewSecurityEvents(publisher, "security.events", logger)

	vault, err := NewCredentialVault(deviceStore, 0, clock.Now, events, logger)
	if err != nil {
		t.Fatalf("NewCredentialVault returned error: %v", err)
	}
	attempts := NewLockoutTracker(deviceStore, LoginScope(3, 30*time.Minute), clock.Now, logger)
	setupAttempts := NewLockoutTracker(deviceStore, FirstTimePinScope(3, 5*time.Minute), clock.Now, logger)
	workflow := NewFirstTimePinWorkflow(deviceStore, setupAttempts, "1234", events, logger)
	cache := NewOTCPINCache(deviceStore, 5*time.Minute, clock.Now, logger)
	bus := NewInvalidationBus(logger)
	cache.Subscribe(bus)
	sensor := availableSensor(SensorResult{Success: true})
	biometric := NewBiometricAuthenticator(sensor, 0, logger)

	coordinator := NewLoginCoordinator(LoginDeps{
		Client:        client,
		Store:         deviceStore,
		Vault:         vault,
		LoginAttempts: attempts,
		FirstTimePin:  workflow,
		OTCPIN:        cache,
		Bus:           bus,
		Biometric:     biometric,
		Retries:       NewRetryRunner(biometric, &schedulerStub{}, DefaultAutoRetries, logger),
		Preferences:   NewBiometricPreferences(deviceStore),
		Events:        events,
	}, logger)

	return &loginFixture{
		coordinator: coordinator,
		client:      client,
		store:       deviceStore,
		clock:       clock,
		vault:       vault,
		workflow:    workflow,
		attempts:    attempts,
		sensor:      sensor,
		publisher:   publisher,
	}
}

func TestLogin_DefaultPINForcesFirstTimeChange(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{
		pins: map[string]string{"0811": "1234"},
		user: map[string]any{"id": "u-1", "OTCPIN": "GRANTED"},
	}
	f := newLoginFixture(t, client)

	res := f.coordinator.SubmitPIN(ctx, "0811", "1234")
	if res.State != domain.LoginSuccess || res.Route != domain.RouteFirstTimePin {
		t.Fatalf("expected first-time PIN route, got %+v", res)
	}
	if !f.workflow.IsRequired(ctx, "0811") {
		t.Fatal("expected first-time PIN change to be required")
	}
	if _, err := f.vault.Load(ctx); !errors.Is(err, domain.ErrNoStoredCredential) {
		t.Fatal("default PIN must not be stored for biometric sign-in")
	}

	rejected := f.coordinator.CompleteFirstTimePIN(ctx, "1234", "1234")
	if rejected.Accepted || rejected.Rule != domain.RuleSameAsDefault || !rejected.ClearPINEntry {
		t.Fatalf("expected same-as-default violation, got %+v", rejected)
	}
	if client.changeCalls != 0 {
		t.Fatal("rejected PIN must not reach the backend")
	}

	accepted := f.coordinator.CompleteFirstTimePIN(ctx, "5799", "5799")
	if !accepted.Accepted || accepted.State != domain.FirstTimePinCompleted {
		t.Fatalf("expected acceptance, got %+v", accepted)
	}
	if f.workflow.IsRequired(ctx, "0811") {
		t.Fatal("expected requirement cleared after completion")
	}
	if client.pins["0811"] != "5799" {
		t.Fatal("expected backend PIN to be changed")
	}
	if !f.publisher.has(domain.EventFirstTimePinTriggered) || !f.publisher.has(domain.EventFirstTimePinCompleted) {
		t.Fatal("expected first-time PIN audit events")
	}
}

func TestLogin_DefaultPINWithoutPermissionGoesToDashboard(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{
		pins: map[string]string{"0811": "1234"},
		user: map[string]any{"id": "u-1", "permissions": map[string]any{"OTCPIN": "DISABLED"}},
	}
	f := newLoginFixture(t, client)

	res := f.coordinator.SubmitPIN(ctx, "0811", "1234")
	if res.Route != domain.RouteDashboard {
		t.Fatalf("expected dashboard route, got %+v", res)
	}
	if f.workflow.IsRequired(ctx, "0811") {
		t.Fatal("workflow must not trigger without permission")
	}
}

func TestLogin_ThreeFailuresBlockSession(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{pins: map[string]string{"0811": "5799"}}
	f := newLoginFixture(t, client)

	for i, wantRemaining := range []int{2, 1} {
		res := f.coordinator.SubmitPIN(ctx, "0811", "0000")
		if res.State != domain.LoginFailed || res.AttemptsRemaining != wantRemaining || !res.ClearPINEntry {
			t.Fatalf("attempt %d: unexpected result %+v", i+1, res)
		}
		if res.RejectReason != domain.RejectBadCredentials || res.ErrorKind != domain.ErrorBackendRejected {
			t.Fatalf("attempt %d: unexpected classification %+v", i+1, res)
		}
		if f.coordinator.State() != domain.LoginIdle {
			t.Fatalf("attempt %d: expected return to idle", i+1)
		}
	}

	third := f.coordinator.SubmitPIN(ctx, "0811", "0000")
	if third.State != domain.LoginBlocked || third.Route != domain.RouteBlocked {
		t.Fatalf("expected blocked after third failure, got %+v", third)
	}
	if !f.publisher.has(domain.EventLoginBlocked) {
		t.Fatal("expected login blocked event")
	}

	calls := client.verifyCalls
	fourth := f.coordinator.SubmitPIN(ctx, "0811", "5799")
	if fourth.State != domain.LoginBlocked || client.verifyCalls != calls {
		t.Fatalf("fourth attempt must not reach the backend: %+v calls=%d", fourth, client.verifyCalls)
	}
}

func TestLogin_EveryRejectionClassCountsOnce(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{
		pins: map[string]string{"0811": "5799"},
		verifyErrs: []error{
			fmt.Errorf("%w: status 502", memberclient.ErrServer),
			errors.New("dial tcp: connection refused"),
		},
	}
	f := newLoginFixture(t, client)

	server := f.coordinator.SubmitPIN(ctx, "0811", "5799")
	if server.RejectReason != domain.RejectServerError || f.attempts.Attempts(ctx) != 1 {
		t.Fatalf("server error must count once: %+v attempts=%d", server, f.attempts.Attempts(ctx))
	}
	network := f.coordinator.SubmitPIN(ctx, "0811", "5799")
	if network.RejectReason != domain.RejectNetworkError || f.attempts.Attempts(ctx) != 2 {
		t.Fatalf("network error must count once: %+v attempts=%d", network, f.attempts.Attempts(ctx))
	}

	ok := f.coordinator.SubmitPIN(ctx, "0811", "5799")
	if ok.Route != domain.RouteDashboard || f.attempts.Attempts(ctx) != 0 {
		t.Fatalf("expected success to reset attempts: %+v attempts=%d", ok, f.attempts.Attempts(ctx))
	}
	cred, err := f.vault.Load(ctx)
	if err != nil || cred.PIN != "5799" {
		t.Fatalf("expected credential stored after success, got %+v, %v", cred, err)
	}
	if token, _ := f.store.Get(ctx, domain.KeyAuthToken); token != "token-0811" {
		t.Fatalf("expected session token stored, got %q", token)
	}
}

func TestLogin_MalformedPINDoesNotConsumeAttempt(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{pins: map[string]string{"0811": "5799"}}
	f := newLoginFixture(t, client)

	res := f.coordinator.SubmitPIN(ctx, "0811", "57")
	if res.ErrorKind != domain.ErrorInvalidFormat || !res.ClearPINEntry {
		t.Fatalf("expected invalid format, got %+v", res)
	}
	if client.verifyCalls != 0 || f.attempts.Attempts(ctx) != 0 {
		t.Fatalf("malformed PIN consumed an attempt: calls=%d attempts=%d", client.verifyCalls, f.attempts.Attempts(ctx))
	}
}

func TestLogin_RollsBackCredentialWhenResetFails(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{pins: map[string]string{"0811": "5799"}}
	f := newLoginFixture(t, client)
	f.store.failMultiRemove = true

	res := f.coordinator.SubmitPIN(ctx, "0811", "5799")
	if res.State != domain.LoginFailed || res.ErrorKind != domain.ErrorStorageFailure {
		t.Fatalf("expected storage failure, got %+v", res)
	}
	if _, err := f.vault.Load(ctx); !errors.Is(err, domain.ErrNoStoredCredential) {
		t.Fatal("credential must be rolled back when the lockout reset fails")
	}
}

func TestLogin_BiometricUsesStoredCredential(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{pins: map[string]string{"0811": "5799"}}
	f := newLoginFixture(t, client)

	if res := f.coordinator.LoginWithBiometrics(ctx, domain.PromptOptions{}); res.Route != domain.RoutePinEntry || res.ErrorKind != domain.ErrorBiometricUnavailable {
		t.Fatalf("expected PIN entry without stored credential, got %+v", res)
	}
	if f.sensor.callCount() != 0 {
		t.Fatal("prompt must not show without a stored credential")
	}

	_ = f.vault.Save(ctx, "0811", "5799")
	res := f.coordinator.LoginWithBiometrics(ctx, domain.PromptOptions{PromptMessage: "Sign in"})
	if res.State != domain.LoginSuccess || res.Route != domain.RouteDashboard || res.Biometric == nil || !res.Biometric.Success {
		t.Fatalf("expected biometric sign-in, got %+v", res)
	}
	if client.verifyCalls != 1 {
		t.Fatalf("expected one verification call, got %d", client.verifyCalls)
	}
}

func TestLogin_BiometricDisabledPreference(t *testing.T) {
	ctx := context.Background()
	f := newLoginFixture(t, &memberClientStub{pins: map[string]string{"0811": "5799"}})
	_ = f.vault.Save(ctx, "0811", "5799")
	if err := NewBiometricPreferences(f.store).Set(ctx, domain.BiometricDisabled); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	res := f.coordinator.LoginWithBiometrics(ctx, domain.PromptOptions{})
	if res.ErrorKind != domain.ErrorBiometricUnavailable || f.sensor.callCount() != 0 {
		t.Fatalf("expected disabled preference to skip the prompt, got %+v", res)
	}
}

func TestLogin_LogoutClearsSecrets(t *testing.T) {
	ctx := context.Background()
	client := &memberClientStub{
		pins:    map[string]string{"0811": "5799"},
		user:    map[string]any{"id": "u-1"},
		profile: map[string]any{"id": "u-1", "OTCPIN": "ENABLED"},
	}
	f := newLoginFixture(t, client)
	f.coordinator.SubmitPIN(ctx, "0811", "5799")

	status, err := f.coordinator.RefreshProfile(ctx)
	if err != nil || !status.Granted || status.Source != domain.OTCPINSourceUserData {
		t.Fatalf("unexpected refreshed status %+v, %v", status, err)
	}

	if err := f.coordinator.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := f.vault.Load(ctx); !errors.Is(err, domain.ErrNoStoredCredential) {
		t.Fatal("expected credential cleared on logout")
	}
	if _, found := f.store.Get(ctx, domain.KeyAuthToken); found {
		t.Fatal("expected token cleared on logout")
	}
	if _, err := f.coordinator.RefreshProfile(ctx); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}
}

func TestJobs_PurgeAndSweep(t *testing.T) {
	ctx := context.Background()
	f := newLoginFixture(t, &memberClientStub{})
	_ = f.vault.Save(ctx, "0811", "5799")
	for i := 0; i < 3; i++ {
		_, _ = f.attempts.Increment(ctx)
	}
	f.clock.Advance(31 * 24 * time.Hour)

	jobs := NewJobs(f.vault, []*LockoutTracker{f.attempts}, zerolog.Nop())
	jobs.PurgeStaleCredentials()
	jobs.SweepLockouts()

	if _, found := f.store.Get(ctx, domain.KeyBiometricCredentials); found {
		t.Fatal("expected stale credential purged")
	}
	if f.attempts.Attempts(ctx) != 0 {
		t.Fatal("expected elapsed lockout swept")
	}
}
