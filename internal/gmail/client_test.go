package gmail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/mailherald/mailherald/internal/errors"
	"github.com/mailherald/mailherald/internal/userstore"
)

func TestNewClientRejectsMissingCredential(t *testing.T) {
	_, err := NewClient(context.Background(), 42, nil, nil, nil)

	var unusable *errors.ErrCredentialUnusable
	require.ErrorAs(t, err, &unusable)
	assert.Equal(t, int64(42), unusable.ChatID)
}

func TestNewClientRejectsExpiredWithoutRefreshToken(t *testing.T) {
	cred := &userstore.Credential{
		AccessToken: "stale",
		Expiry:      time.Now().Add(-time.Hour),
	}

	_, err := NewClient(context.Background(), 42, cred, nil, nil)

	var unusable *errors.ErrCredentialUnusable
	require.ErrorAs(t, err, &unusable)
}

func TestNewClientAcceptsRefreshableCredential(t *testing.T) {
	cred := &userstore.Credential{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		TokenURL:     "https://oauth2.googleapis.com/token",
		Expiry:       time.Now().Add(-time.Hour),
	}

	client, err := NewClient(context.Background(), 42, cred, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestUnreadQuery(t *testing.T) {
	assert.Equal(t, "is:unread after:1700000000", unreadQuery(1700000000))
}

func TestPersistingTokenSource(t *testing.T) {
	var persisted []*oauth2.Token
	source := &persistingTokenSource{
		base: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fresh"}),
		last: "original",
		persist: func(tok *oauth2.Token) {
			persisted = append(persisted, tok)
		},
	}

	tok, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	require.Len(t, persisted, 1)

	// A second call returning the same token does not persist again.
	_, err = source.Token()
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestHeader(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "Subject", Value: "Hello"},
			},
		},
	}

	assert.Equal(t, "alice@example.com", Header(msg, "From"))
	assert.Equal(t, "Hello", Header(msg, "Subject"))
	assert.Equal(t, "", Header(msg, "Date"))
	assert.Equal(t, "", Header(nil, "From"))
	assert.Equal(t, "", Header(&gmail.Message{}, "From"))
}
