/**
 * @description
 * This package provides a client for the cooperative member service. It covers
 * the three calls the authentication core depends on: credential verification,
 * profile retrieval and PIN change.
 *
 * Key features:
 * - Rejections (401/403 or success=false) map to ErrInvalidCredentials.
 * - 5xx responses map to ErrServer.
 * - Transport failures are returned wrapped so callers can tell them apart.
 */
package memberclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid phone number or PIN")
	ErrServer             = errors.New("member service error")
	ErrUnauthorized       = errors.New("member session is not authorized")
)

// Client is a client for the member service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new member service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VerifyRequest is the login payload.
type VerifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	PIN         string `json:"pin"`
}

// VerifyResponse is the login response. User is kept as a raw record because
// permission fields drift between backend versions.
type VerifyResponse struct {
	Success bool           `json:"success"`
	Token   string         `json:"token"`
	User    map[string]any `json:"user"`
	Message string         `json:"message,omitempty"`
}

// ChangePINRequest is the PIN change payload.
type ChangePINRequest struct {
	PhoneNumber string `json:"phone_number"`
	CurrentPIN  string `json:"current_pin"`
	NewPIN      string `json:"new_pin"`
}

// VerifyCredentials checks phone and pin against the member service.
func (c *Client) VerifyCredentials(ctx context.Context, phone, pin string) (*VerifyResponse, error) {
	var response VerifyResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", VerifyRequest{PhoneNumber: phone, PIN: pin}, &response)
	if errors.Is(err, ErrUnauthorized) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, ErrInvalidCredentials
	}
	return &response, nil
}

// GetProfile returns the current member record.
func (c *Client) GetProfile(ctx context.Context, token string) (map[string]any, error) {
	var envelope struct {
		User map[string]any `json:"user"`
	}
	var raw map[string]any
	body, err := c.doRaw(ctx, http.MethodGet, "/members/me", token, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.User != nil {
		return envelope.User, nil
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return raw, nil
}

// ChangePIN replaces the member's PIN.
func (c *Client) ChangePIN(ctx context.Context, token, phone, currentPIN, newPIN string) error {
	payload := ChangePINRequest{PhoneNumber: phone, CurrentPIN: currentPIN, NewPIN: newPIN}
	err := c.do(ctx, http.MethodPost, "/auth/change-pin", token, payload, nil)
	if errors.Is(err, ErrUnauthorized) {
		return ErrInvalidCredentials
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, payload, out any) error {
	body, err := c.doRaw(ctx, method, path, token, payload)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path, token string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("member service base url is empty")
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to member service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("member service returned error status %d", resp.StatusCode)
	}
	return body, nil
}
