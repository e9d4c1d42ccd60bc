// Package gmail wraps the Gmail API for per-user mailbox polling. Each
// authorized chat gets its own Client built from its stored credential.
package gmail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailherald/mailherald/internal/errors"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/userstore"
)

const user = "me"

// Client wraps the Gmail Users service for one authorized chat.
type Client struct {
	chatID int64
	svc    *gmail.UsersService
	logger *logging.Logger
}

// NewClient builds a Gmail client for the chat from its stored credential.
// Refreshed access tokens are handed to persist so the flat file stays
// current across restarts. Returns ErrCredentialUnusable when the credential
// is missing or expired without a refresh token.
func NewClient(ctx context.Context, chatID int64, cred *userstore.Credential, persist func(*oauth2.Token), logger *logging.Logger) (*Client, error) {
	if cred == nil {
		return nil, &errors.ErrCredentialUnusable{ChatID: chatID, Reason: "no stored credential"}
	}
	if !cred.Valid() && !cred.Refreshable() {
		return nil, &errors.ErrCredentialUnusable{ChatID: chatID, Reason: "token expired and no refresh token"}
	}

	conf := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cred.TokenURL},
		Scopes:       cred.Scopes,
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}

	source := &persistingTokenSource{
		base:    conf.TokenSource(ctx, token),
		last:    token.AccessToken,
		persist: persist,
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, &errors.ErrGmailCall{Op: "new_service", Err: err}
	}

	return &Client{
		chatID: chatID,
		svc:    svc.Users,
		logger: logger,
	}, nil
}

// persistingTokenSource writes refreshed tokens back through the persist
// callback so a restart does not lose the rotated access token.
type persistingTokenSource struct {
	base    oauth2.TokenSource
	persist func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	if changed {
		s.last = tok.AccessToken
	}
	s.mu.Unlock()

	if changed && s.persist != nil {
		s.persist(tok)
	}
	return tok, nil
}

// unreadQuery builds the Gmail search query for unread mail received after
// the given Unix timestamp.
func unreadQuery(after int64) string {
	return fmt.Sprintf("is:unread after:%d", after)
}

// ListUnreadAfter returns unread messages received after the Unix timestamp,
// newest first, capped at max.
func (c *Client) ListUnreadAfter(ctx context.Context, after, max int64) ([]*gmail.Message, error) {
	var resp *gmail.ListMessagesResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = c.svc.Messages.List(user).
				Q(unreadQuery(after)).
				MaxResults(max).
				Context(ctx).Do()
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, &errors.ErrGmailCall{Op: "list", Err: err}
	}
	return resp.Messages, nil
}

// GetMessage fetches the full message, including the MIME payload.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := retry.Do(
		func() error {
			var err error
			msg, err = c.svc.Messages.Get(user, id).Format("full").Context(ctx).Do()
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, &errors.ErrGmailCall{Op: "get", Err: err}
	}
	return msg, nil
}

// MarkRead removes the UNREAD label so the message is not picked up again.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	err := retry.Do(
		func() error {
			_, err := c.svc.Messages.Modify(user, id, &gmail.ModifyMessageRequest{
				RemoveLabelIds: []string{"UNREAD"},
			}).Context(ctx).Do()
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return &errors.ErrGmailCall{Op: "mark_read", Err: err}
	}
	return nil
}

// Header returns the named header from the message payload, or "" when the
// header is absent.
func Header(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
