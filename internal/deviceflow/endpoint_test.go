package deviceflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailherald/mailherald/internal/errors"
)

func TestRequestCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		assert.Equal(t, "scope-a scope-b", r.Form.Get("scope"))
		w.Write([]byte(`{"device_code":"dev","user_code":"ABCD","verification_url":"https://www.google.com/device","interval":5,"expires_in":1800}`))
	}))
	defer server.Close()

	endpoint := NewGoogleEndpoint(server.URL, server.URL)
	code, err := endpoint.RequestCode(context.Background(), &ClientCredentials{ClientID: "cid"}, []string{"scope-a", "scope-b"})

	require.NoError(t, err)
	assert.Equal(t, "dev", code.DeviceCode)
	assert.Equal(t, "ABCD", code.UserCode)
	assert.Equal(t, "https://www.google.com/device", code.URL())
	assert.Equal(t, int64(5), code.Interval)
}

func TestRequestCodeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	endpoint := NewGoogleEndpoint(server.URL, server.URL)
	_, err := endpoint.RequestCode(context.Background(), &ClientCredentials{ClientID: "cid"}, nil)

	var flowErr *errors.ErrDeviceFlow
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, "init_failed", flowErr.Code)
	assert.Contains(t, flowErr.Description, "invalid_client")
}

func TestPollTokenPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "dev", r.Form.Get("device_code"))
		assert.Equal(t, deviceGrantType, r.Form.Get("grant_type"))
		w.WriteHeader(http.StatusPreconditionRequired)
		w.Write([]byte(`{"error":"authorization_pending"}`))
	}))
	defer server.Close()

	endpoint := NewGoogleEndpoint(server.URL, server.URL)
	resp, err := endpoint.PollToken(context.Background(), &ClientCredentials{ClientID: "cid", ClientSecret: "sec"}, "dev")

	require.NoError(t, err)
	assert.Equal(t, "authorization_pending", resp.Error)
	assert.Empty(t, resp.AccessToken)
}

func TestPollTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3599,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	endpoint := NewGoogleEndpoint(server.URL, server.URL)
	resp, err := endpoint.PollToken(context.Background(), &ClientCredentials{}, "dev")

	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "rt", resp.RefreshToken)
	assert.Equal(t, int64(3599), resp.ExpiresIn)
}

func TestPollTokenTransportError(t *testing.T) {
	endpoint := NewGoogleEndpoint("http://127.0.0.1:1", "http://127.0.0.1:1")
	_, err := endpoint.PollToken(context.Background(), &ClientCredentials{}, "dev")
	assert.Error(t, err)
}
