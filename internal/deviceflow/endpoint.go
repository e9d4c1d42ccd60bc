package deviceflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mailherald/mailherald/internal/errors"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// DeviceCode is the authorization handle returned when a flow starts.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	// VerificationURI is the RFC 8628 spelling some providers use instead.
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// URL returns the verification address under either spelling.
func (d *DeviceCode) URL() string {
	if d.VerificationURL != "" {
		return d.VerificationURL
	}
	return d.VerificationURI
}

// TokenResponse is one poll result from the token endpoint. Exactly one of
// AccessToken or Error is set.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Endpoint is the OAuth device authorization endpoint pair. It exists as an
// interface so tests can script poll outcomes.
type Endpoint interface {
	RequestCode(ctx context.Context, creds *ClientCredentials, scopes []string) (*DeviceCode, error)
	PollToken(ctx context.Context, creds *ClientCredentials, deviceCode string) (*TokenResponse, error)
}

// GoogleEndpoint talks to Google's device authorization endpoints.
type GoogleEndpoint struct {
	deviceCodeURL string
	tokenURL      string
	client        *http.Client
}

// NewGoogleEndpoint creates an endpoint using the given URLs.
func NewGoogleEndpoint(deviceCodeURL, tokenURL string) *GoogleEndpoint {
	return &GoogleEndpoint{
		deviceCodeURL: deviceCodeURL,
		tokenURL:      tokenURL,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// RequestCode starts a device authorization and returns the code pair.
func (e *GoogleEndpoint) RequestCode(ctx context.Context, creds *ClientCredentials, scopes []string) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {creds.ClientID},
		"scope":     {strings.Join(scopes, " ")},
	}

	body, status, err := e.post(ctx, e.deviceCodeURL, form)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &errors.ErrDeviceFlow{Code: "init_failed", Description: strings.TrimSpace(string(body))}
	}

	var code DeviceCode
	if err := json.Unmarshal(body, &code); err != nil {
		return nil, fmt.Errorf("decoding device code response: %w", err)
	}
	if code.DeviceCode == "" || code.UserCode == "" {
		return nil, &errors.ErrDeviceFlow{Code: "init_failed", Description: "incomplete device code response"}
	}
	return &code, nil
}

// PollToken asks the token endpoint whether the user has approved yet. OAuth
// protocol errors come back inside the TokenResponse; only transport and
// decode failures are returned as errors.
func (e *GoogleEndpoint) PollToken(ctx context.Context, creds *ClientCredentials, deviceCode string) (*TokenResponse, error) {
	form := url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"device_code":   {deviceCode},
		"grant_type":    {deviceGrantType},
	}

	body, _, err := e.post(ctx, e.tokenURL, form)
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	return &resp, nil
}

func (e *GoogleEndpoint) post(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

var _ Endpoint = (*GoogleEndpoint)(nil)
