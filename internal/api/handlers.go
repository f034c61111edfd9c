/**
 * @description
 * HTTP handlers for the device bridge. Every domain outcome, including a
 * rejected PIN or a lockout, is a 200 with the result value as JSON; only
 * malformed request bodies are answered with 400.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/rs/zerolog: structured logging.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SessionService is the login coordinator as seen by the bridge.
type SessionService interface {
	State() domain.LoginState
	SubmitPIN(ctx context.Context, phone, pin string) domain.LoginResult
	LoginWithBiometrics(ctx context.Context, opts domain.PromptOptions) domain.LoginResult
	CompleteFirstTimePIN(ctx context.Context, newPIN, confirm string) domain.SetupResult
	RefreshProfile(ctx context.Context) (domain.OTCPINStatus, error)
	PermissionStatus(ctx context.Context) domain.OTCPINStatus
	Logout(ctx context.Context) error
}

// FirstTimePinReader exposes the per-phone first-time PIN status.
type FirstTimePinReader interface {
	Requirement(ctx context.Context, phone string) (domain.FirstTimePinRequirement, error)
	State(ctx context.Context, phone string) (domain.FirstTimePinState, domain.LockoutStatus, error)
}

// CapabilityProber reports what the biometric sensor supports.
type CapabilityProber interface {
	Initialize(ctx context.Context) domain.BiometricCapability
	PreferredModality() (domain.Modality, bool)
}

// PreferenceStore reads and writes the biometric preference.
type PreferenceStore interface {
	Get(ctx context.Context) domain.BiometricPreference
	Set(ctx context.Context, pref domain.BiometricPreference) error
}

// Invalidator broadcasts a cache invalidation.
type Invalidator interface {
	Notify(reason string)
}

// Handlers holds the dependencies of the bridge handlers.
type Handlers struct {
	session      SessionService
	firstTimePin FirstTimePinReader
	biometric    CapabilityProber
	preferences  PreferenceStore
	invalidator  Invalidator
	logger       zerolog.Logger
}

// NewHandlers creates the bridge handlers.
func NewHandlers(session SessionService, firstTimePin FirstTimePinReader, biometric CapabilityProber, preferences PreferenceStore, invalidator Invalidator, logger zerolog.Logger) *Handlers {
	return &Handlers{
		session:      session,
		firstTimePin: firstTimePin,
		biometric:    biometric,
		preferences:  preferences,
		invalidator:  invalidator,
		logger:       logger.With().Str("component", "bridge_handlers").Logger(),
	}
}

type submitPINRequest struct {
	PhoneNumber string `json:"phone_number"`
	PIN         string `json:"pin"`
}

type completeFirstTimePinRequest struct {
	NewPIN     string `json:"new_pin"`
	ConfirmPIN string `json:"confirm_pin"`
}

type preferenceRequest struct {
	Preference string `json:"preference"`
}

type invalidateRequest struct {
	Reason string `json:"reason"`
}

type firstTimePinStatusResponse struct {
	PhoneNumber        string                         `json:"phone_number"`
	State              domain.FirstTimePinState       `json:"state"`
	Requirement        domain.FirstTimePinRequirement `json:"requirement"`
	IsLocked           bool                           `json:"is_locked"`
	LockoutRemainingMs int64                          `json:"lockout_remaining_ms,omitempty"`
}

type capabilityResponse struct {
	domain.BiometricCapability
	IsAvailable       bool            `json:"available"`
	PreferredModality domain.Modality `json:"preferred_modality,omitempty"`
}

type logoutResponse struct {
	LoggedOut bool              `json:"logged_out"`
	State     domain.LoginState `json:"state"`
	Message   string            `json:"message,omitempty"`
}

type refreshResponse struct {
	Refreshed bool                `json:"refreshed"`
	Status    domain.OTCPINStatus `json:"status"`
	Message   string              `json:"message,omitempty"`
}

// decode reads an optional JSON body; an empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// SubmitPINHandler signs in with phone number and PIN.
func (h *Handlers) SubmitPINHandler(w http.ResponseWriter, r *http.Request) {
	var req submitPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid PIN submission body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res := h.session.SubmitPIN(r.Context(), strings.TrimSpace(req.PhoneNumber), req.PIN)
	h.writeJSON(w, http.StatusOK, res)
}

// BiometricLoginHandler signs in with the device sensor and stored credential.
func (h *Handlers) BiometricLoginHandler(w http.ResponseWriter, r *http.Request) {
	var opts domain.PromptOptions
	if err := decode(r, &opts); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if opts.PromptMessage == "" {
		opts.PromptMessage = "Sign in to your account"
	}
	res := h.session.LoginWithBiometrics(r.Context(), opts)
	h.writeJSON(w, http.StatusOK, res)
}

// LogoutHandler ends the session and clears stored secrets.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	resp := logoutResponse{LoggedOut: true}
	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("logout completed with storage errors")
		resp.LoggedOut = false
		resp.Message = "Signed out, but some data could not be cleared from this device"
	}
	resp.State = h.session.State()
	h.writeJSON(w, http.StatusOK, resp)
}

// RefreshProfileHandler reloads the member profile and the OTCPIN permission.
func (h *Handlers) RefreshProfileHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.session.RefreshProfile(r.Context())
	if err != nil {
		resp := refreshResponse{Status: h.session.PermissionStatus(r.Context())}
		if errors.Is(err, domain.ErrNoSession) {
			resp.Message = "Sign in first"
		} else {
			h.logger.Warn().Err(err).Msg("profile refresh failed")
			resp.Message = "Could not refresh your profile"
		}
		h.writeJSON(w, http.StatusOK, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, refreshResponse{Refreshed: true, Status: status})
}

// BiometricCapabilityHandler probes the sensor.
func (h *Handlers) BiometricCapabilityHandler(w http.ResponseWriter, r *http.Request) {
	capability := h.biometric.Initialize(r.Context())
	resp := capabilityResponse{BiometricCapability: capability, IsAvailable: capability.Available()}
	if m, ok := h.biometric.PreferredModality(); ok {
		resp.PreferredModality = m
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetBiometricPreferenceHandler returns the stored preference.
func (h *Handlers) GetBiometricPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, preferenceRequest{Preference: string(h.preferences.Get(r.Context()))})
}

// SetBiometricPreferenceHandler stores a new preference.
func (h *Handlers) SetBiometricPreferenceHandler(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	pref, ok := domain.ParseBiometricPreference(req.Preference)
	if !ok {
		http.Error(w, "Unknown biometric preference", http.StatusBadRequest)
		return
	}
	if err := h.preferences.Set(r.Context(), pref); err != nil {
		h.logger.Error().Err(err).Str("preference", string(pref)).Msg("failed to store biometric preference")
		http.Error(w, "Could not save preference", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, preferenceRequest{Preference: string(pref)})
}

// FirstTimePinStatusHandler reports whether phone must replace its default PIN.
func (h *Handlers) FirstTimePinStatusHandler(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(chi.URLParam(r, "phone"))
	if phone == "" {
		http.Error(w, "Phone number is required", http.StatusBadRequest)
		return
	}
	req, err := h.firstTimePin.Requirement(r.Context(), phone)
	if err != nil {
		h.logger.Warn().Err(err).Msg("first-time PIN requirement unreadable")
	}
	state, lockout, err := h.firstTimePin.State(r.Context(), phone)
	if err != nil {
		h.logger.Warn().Err(err).Msg("first-time PIN state unreadable")
	}
	h.writeJSON(w, http.StatusOK, firstTimePinStatusResponse{
		PhoneNumber:        phone,
		State:              state,
		Requirement:        req,
		IsLocked:           lockout.IsLocked,
		LockoutRemainingMs: lockout.RemainingMs(),
	})
}

// CompleteFirstTimePinHandler replaces the default PIN for the signed-in member.
func (h *Handlers) CompleteFirstTimePinHandler(w http.ResponseWriter, r *http.Request) {
	var req completeFirstTimePinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res := h.session.CompleteFirstTimePIN(r.Context(), req.NewPIN, req.ConfirmPIN)
	h.writeJSON(w, http.StatusOK, res)
}

// PermissionStatusHandler returns the cached OTCPIN permission.
func (h *Handlers) PermissionStatusHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.session.PermissionStatus(r.Context()))
}

// InvalidatePermissionHandler drops every cached permission.
func (h *Handlers) InvalidatePermissionHandler(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}
	h.invalidator.Notify(reason)
	h.writeJSON(w, http.StatusOK, map[string]string{"invalidated": reason})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to write JSON response")
	}
}
