/**
 * @description
 * LoginCoordinator runs the PIN and biometric sign-in flows end to end:
 * shape check, lockout gate, backend verification, then routing to the
 * mandatory PIN change or the dashboard.
 *
 * Key features:
 * - Every backend rejection (bad credentials, server error, network error)
 *   counts exactly once against the login scope.
 * - Reaching the limit blocks the session; later submissions never reach
 *   the backend.
 * - Credential persistence and lockout reset are applied together or not at all.
 * - Results are plain values; nothing here returns an error to the UI.
 *
 * @dependencies
 * - pkg/memberclient: remote verification, profile and PIN change.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/Egie02/Client-sub000/pkg/memberclient"
	"github.com/rs/zerolog"
)

// MemberClient is the remote member service.
type MemberClient interface {
	VerifyCredentials(ctx context.Context, phone, pin string) (*memberclient.VerifyResponse, error)
	GetProfile(ctx context.Context, token string) (map[string]any, error)
	ChangePIN(ctx context.Context, token, phone, currentPIN, newPIN string) error
}

// LoginDeps groups the coordinator collaborators.
type LoginDeps struct {
	Client        MemberClient
	Store         DeviceStore
	Vault         *CredentialVault
	LoginAttempts *LockoutTracker
	FirstTimePin  *FirstTimePinWorkflow
	OTCPIN        *OTCPINCache
	Bus           *InvalidationBus
	Biometric     *BiometricAuthenticator
	Retries       *RetryRunner
	Preferences   *BiometricPreferences
	Events        *SecurityEvents
}

type memberSession struct {
	phone   string
	token   string
	user    *domain.MemberUser
	profile map[string]any
	// pendingPIN is held only while the mandatory change is outstanding.
	pendingPIN string
}

type LoginCoordinator struct {
	deps   LoginDeps
	logger zerolog.Logger

	mu      sync.Mutex
	state   domain.LoginState
	session *memberSession
}

func NewLoginCoordinator(deps LoginDeps, logger zerolog.Logger) *LoginCoordinator {
	return &LoginCoordinator{
		deps:   deps,
		logger: logger.With().Str("component", "login").Logger(),
		state:  domain.LoginIdle,
	}
}

// State returns the current coordinator state.
func (c *LoginCoordinator) State() domain.LoginState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubmitPIN signs in with phone and pin.
func (c *LoginCoordinator) SubmitPIN(ctx context.Context, phone, pin string) domain.LoginResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res, blocked := c.gate(ctx); blocked {
		return res
	}

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.LoginResult{
			State:         c.state,
			Route:         domain.RouteStay,
			ErrorKind:     domain.ErrorInvalidFormat,
			Message:       "Phone number is required",
			ClearPINEntry: true,
		}
	}
	if perr := ValidatePIN(pin, KindGeneric, PolicyInput{}); perr != nil {
		return domain.LoginResult{
			State:             c.state,
			Route:             domain.RouteStay,
			ErrorKind:         perr.Kind(),
			Rule:              perr.Rule,
			Message:           perr.Message(),
			AttemptsRemaining: c.deps.LoginAttempts.Remaining(c.deps.LoginAttempts.Attempts(ctx)),
			ClearPINEntry:     true,
		}
	}

	return c.verify(ctx, phone, pin, false)
}

// LoginWithBiometrics authenticates with the device sensor and then signs in
// with the stored credential.
func (c *LoginCoordinator) LoginWithBiometrics(ctx context.Context, opts domain.PromptOptions) domain.LoginResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res, blocked := c.gate(ctx); blocked {
		return res
	}

	unavailable := func(message string, auth *domain.AuthResult) domain.LoginResult {
		return domain.LoginResult{
			State:     c.state,
			Route:     domain.RoutePinEntry,
			ErrorKind: domain.ErrorBiometricUnavailable,
			Message:   message,
			Biometric: auth,
		}
	}

	if c.deps.Preferences != nil && c.deps.Preferences.Get(ctx) == domain.BiometricDisabled {
		return unavailable("Biometric sign-in is turned off", nil)
	}
	if capability := c.deps.Biometric.Initialize(ctx); !capability.Available() {
		return unavailable("Biometric sign-in is not available on this device", nil)
	}
	cred, err := c.deps.Vault.Load(ctx)
	if err != nil {
		return unavailable("Sign in with your PIN to enable biometric sign-in", nil)
	}

	auth := c.deps.Retries.Run(ctx, opts)
	if !auth.Success {
		route := domain.RouteStay
		if auth.ShouldFallbackToPin {
			route = domain.RoutePinEntry
		}
		kind := auth.ErrorKind
		if kind == domain.ErrorNone {
			kind = domain.ErrorBiometricFailed
		}
		return domain.LoginResult{
			State:     c.state,
			Route:     route,
			ErrorKind: kind,
			Message:   "Biometric authentication failed. Use your PIN instead.",
			Biometric: &auth,
		}
	}

	res := c.verify(ctx, cred.PhoneNumber, cred.PIN, true)
	res.Biometric = &auth
	return res
}

// gate reports whether the session may not submit. Caller holds c.mu.
func (c *LoginCoordinator) gate(ctx context.Context) (domain.LoginResult, bool) {
	if c.state == domain.LoginBlocked {
		return c.blockedResult(ctx), true
	}
	status, err := c.deps.LoginAttempts.CheckLockout(ctx)
	if err != nil {
		return domain.LoginResult{
			State:         c.state,
			Route:         domain.RouteStay,
			ErrorKind:     domain.ErrorStorageFailure,
			Message:       "Something went wrong. Please try again.",
			ClearPINEntry: true,
		}, true
	}
	if status.IsLocked {
		c.state = domain.LoginBlocked
		return c.blockedResult(ctx), true
	}
	return domain.LoginResult{}, false
}

func (c *LoginCoordinator) blockedResult(ctx context.Context) domain.LoginResult {
	res := domain.LoginResult{
		State:         domain.LoginBlocked,
		Route:         domain.RouteBlocked,
		ErrorKind:     domain.ErrorLockedOut,
		Message:       "Your access is blocked after too many failed attempts",
		ClearPINEntry: true,
	}
	if status, err := c.deps.LoginAttempts.CheckLockout(ctx); err == nil {
		res.LockoutRemainingMs = status.RemainingMs()
	}
	return res
}

// verify calls the backend and applies the outcome. Caller holds c.mu.
func (c *LoginCoordinator) verify(ctx context.Context, phone, pin string, viaBiometric bool) domain.LoginResult {
	c.state = domain.LoginSubmitting

	resp, err := c.deps.Client.VerifyCredentials(ctx, phone, pin)
	if err != nil {
		return c.rejected(ctx, phone, err, viaBiometric)
	}

	user := memberFromRecord(resp.User, phone, resp.Token)
	session := &memberSession{phone: phone, token: resp.Token, user: user, profile: resp.User}

	if _, err := c.deps.Vault.ClearIfPhoneChanged(ctx, phone); err != nil {
		c.logger.Warn().Err(err).Msg("failed to drop previous member credential")
	}
	if resp.Token != "" && !c.deps.Store.Set(ctx, domain.KeyAuthToken, resp.Token) {
		c.logger.Warn().Msg("failed to persist session token")
	}
	if asserted := ExtractOTCPIN(resp.User); asserted != nil {
		if err := c.deps.OTCPIN.RecordServerStatus(ctx, *asserted); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist permission flag")
		}
	}
	c.deps.Bus.Notify("login")

	status := c.deps.OTCPIN.Read(ctx, OTCPINInput{UserID: user.ID, Profile: resp.User})
	if c.deps.FirstTimePin.Qualifies(ctx, phone, pin, status) {
		return c.routeFirstTimePin(ctx, session, pin)
	}

	if err := c.persistSuccess(ctx, phone, pin); err != nil {
		c.logger.Error().Err(err).Msg("sign-in side effects rolled back")
		res := domain.LoginResult{
			State:         domain.LoginFailed,
			Route:         domain.RouteStay,
			ErrorKind:     domain.ErrorStorageFailure,
			Message:       "Something went wrong. Please try again.",
			ClearPINEntry: true,
		}
		c.state = domain.LoginIdle
		return res
	}

	c.session = session
	c.state = domain.LoginSuccess
	c.logger.Info().Str("user_id", user.ID).Bool("biometric", viaBiometric).Msg("member signed in")
	return domain.LoginResult{State: domain.LoginSuccess, Route: domain.RouteDashboard, User: user}
}

// persistSuccess saves the credential and resets the login scope; if the
// reset fails the credential is removed again.
func (c *LoginCoordinator) persistSuccess(ctx context.Context, phone, pin string) error {
	if err := c.deps.Vault.Save(ctx, phone, pin); err != nil {
		return err
	}
	if err := c.deps.LoginAttempts.Reset(ctx); err != nil {
		if clearErr := c.deps.Vault.Clear(ctx); clearErr != nil {
			return errors.Join(err, clearErr)
		}
		return err
	}
	return nil
}

func (c *LoginCoordinator) routeFirstTimePin(ctx context.Context, session *memberSession, pin string) domain.LoginResult {
	if err := c.deps.FirstTimePin.Trigger(ctx, session.phone, "default_pin_login"); err != nil {
		c.logger.Error().Err(err).Msg("failed to trigger first-time PIN change")
		c.state = domain.LoginIdle
		return domain.LoginResult{
			State:         domain.LoginFailed,
			Route:         domain.RouteStay,
			ErrorKind:     domain.ErrorStorageFailure,
			Message:       "Something went wrong. Please try again.",
			ClearPINEntry: true,
		}
	}
	if err := c.deps.LoginAttempts.Reset(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to reset login attempts")
	}

	session.pendingPIN = pin
	c.session = session
	c.state = domain.LoginSuccess
	c.logger.Info().Str("user_id", session.user.ID).Msg("default PIN in use, change required")
	return domain.LoginResult{
		State:   domain.LoginSuccess,
		Route:   domain.RouteFirstTimePin,
		Message: "Please set a new PIN to continue",
		User:    session.user,
	}
}

// rejected counts one failed attempt. Caller holds c.mu.
func (c *LoginCoordinator) rejected(ctx context.Context, phone string, verifyErr error, viaBiometric bool) domain.LoginResult {
	reason := classifyRejection(verifyErr)
	c.logger.Warn().Err(verifyErr).Str("reason", string(reason)).Msg("sign-in rejected")

	if viaBiometric && reason == domain.RejectBadCredentials {
		if err := c.deps.Vault.Clear(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear rejected stored credential")
		}
	}

	count, err := c.deps.LoginAttempts.Increment(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to record sign-in attempt")
		c.state = domain.LoginIdle
		return domain.LoginResult{
			State:         domain.LoginFailed,
			Route:         domain.RouteStay,
			ErrorKind:     domain.ErrorStorageFailure,
			RejectReason:  reason,
			Message:       "Something went wrong. Please try again.",
			ClearPINEntry: true,
		}
	}

	remaining := c.deps.LoginAttempts.Remaining(count)
	if remaining == 0 {
		c.state = domain.LoginBlocked
		c.deps.Events.Emit(ctx, domain.EventLoginBlocked, phone, string(reason))
		res := c.blockedResult(ctx)
		res.RejectReason = reason
		return res
	}

	c.state = domain.LoginIdle
	return domain.LoginResult{
		State:             domain.LoginFailed,
		Route:             domain.RouteStay,
		ErrorKind:         domain.ErrorBackendRejected,
		RejectReason:      reason,
		Message:           rejectionMessage(reason, remaining),
		AttemptsRemaining: remaining,
		ClearPINEntry:     true,
	}
}

func classifyRejection(err error) domain.RejectReason {
	switch {
	case errors.Is(err, memberclient.ErrInvalidCredentials):
		return domain.RejectBadCredentials
	case errors.Is(err, memberclient.ErrServer):
		return domain.RejectServerError
	default:
		return domain.RejectNetworkError
	}
}

func rejectionMessage(reason domain.RejectReason, remaining int) string {
	var lead string
	switch reason {
	case domain.RejectBadCredentials:
		lead = "Incorrect phone number or PIN."
	case domain.RejectServerError:
		lead = "The service could not verify your PIN."
	default:
		lead = "Could not reach the service."
	}
	if remaining == 1 {
		return lead + " 1 attempt remaining."
	}
	return fmt.Sprintf("%s %d attempts remaining.", lead, remaining)
}

// CompleteFirstTimePIN submits the mandatory new PIN for the signed-in member.
func (c *LoginCoordinator) CompleteFirstTimePIN(ctx context.Context, newPIN, confirm string) domain.SetupResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.pendingPIN == "" {
		return domain.SetupResult{
			State:    domain.FirstTimePinNotRequired,
			Message:  "Sign in again to change your PIN",
			HardStop: true,
		}
	}
	session := c.session

	res := c.deps.FirstTimePin.Submit(ctx, session.phone, newPIN, confirm)
	if !res.Accepted {
		if res.HardStop {
			c.endSession()
		}
		return res
	}

	if err := c.deps.Client.ChangePIN(ctx, session.token, session.phone, session.pendingPIN, newPIN); err != nil {
		c.logger.Warn().Err(err).Msg("remote PIN change failed")
		res = c.deps.FirstTimePin.RecordFailure(ctx, session.phone, domain.ErrorBackendRejected, "", "Your PIN could not be changed. Please try again.")
		if res.HardStop {
			c.endSession()
		}
		return res
	}

	if err := c.deps.FirstTimePin.MarkCompleted(ctx, session.phone); err != nil {
		c.logger.Error().Err(err).Msg("failed to record first-time PIN completion")
		return storageSetupResult(domain.FirstTimePinRequired)
	}
	if err := c.deps.Vault.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear stored credential after PIN change")
	}
	c.deps.Bus.Notify("pin_changed")

	session.pendingPIN = ""
	return domain.SetupResult{Accepted: true, State: domain.FirstTimePinCompleted}
}

// RefreshProfile reloads the member record and re-derives the permission.
func (c *LoginCoordinator) RefreshProfile(ctx context.Context) (domain.OTCPINStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return domain.OTCPINStatus{}, domain.ErrNoSession
	}
	profile, err := c.deps.Client.GetProfile(ctx, c.session.token)
	if err != nil {
		return domain.OTCPINStatus{}, fmt.Errorf("refresh profile: %w", err)
	}
	c.session.profile = profile
	if asserted := ExtractOTCPIN(profile); asserted != nil {
		if err := c.deps.OTCPIN.RecordServerStatus(ctx, *asserted); err != nil {
			c.logger.Warn().Err(err).Msg("failed to persist permission flag")
		}
	}
	c.deps.Bus.Notify("profile_refresh")
	return c.deps.OTCPIN.Read(ctx, c.permissionInput()), nil
}

// PermissionStatus reads the cached OTCPIN permission for the session.
func (c *LoginCoordinator) PermissionStatus(ctx context.Context) domain.OTCPINStatus {
	c.mu.Lock()
	input := c.permissionInput()
	c.mu.Unlock()
	return c.deps.OTCPIN.Read(ctx, input)
}

func (c *LoginCoordinator) permissionInput() OTCPINInput {
	if c.session == nil {
		return OTCPINInput{}
	}
	return OTCPINInput{UserID: c.session.user.ID, Profile: c.session.profile}
}

// Logout ends the session and drops stored secrets.
func (c *LoginCoordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.deps.Vault.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if !c.deps.Store.Remove(ctx, domain.KeyAuthToken) {
		errs = append(errs, fmt.Errorf("clear session token: %w", domain.ErrStorageFailure))
	}
	c.deps.Bus.Notify("logout")
	c.endSession()
	return errors.Join(errs...)
}

func (c *LoginCoordinator) endSession() {
	c.session = nil
	if c.state != domain.LoginBlocked {
		c.state = domain.LoginIdle
	}
}

// memberFromRecord maps the raw backend record. The token subject fills in a
// missing id.
func memberFromRecord(record map[string]any, phone, token string) *domain.MemberUser {
	user := &domain.MemberUser{PhoneNumber: phone, Raw: record}
	if record != nil {
		user.ID = firstString(record, "id", "user_id", "member_id")
		user.Name = firstString(record, "name", "full_name")
		if p := firstString(record, "phone_number", "phoneNumber"); p != "" {
			user.PhoneNumber = p
		}
	}
	if user.ID == "" {
		if sub, err := tokenSubject(token); err == nil {
			user.ID = sub
		}
	}
	if user.ID == "" {
		user.ID = phone
	}
	return user
}

func firstString(record map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := record[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			return s
		}
	}
	return ""
}
