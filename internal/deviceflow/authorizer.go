// Package deviceflow runs the OAuth device authorization grant for one chat
// at a time: request a code, show it to the user, then poll the token
// endpoint until the grant resolves or the window closes.
package deviceflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mailherald/mailherald/internal/config"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/metrics"
	"github.com/mailherald/mailherald/internal/telegram"
	"github.com/mailherald/mailherald/internal/userstore"
)

// State is the lifecycle state of one authorization session.
type State string

const (
	StatePending State = "pending"
	StateGranted State = "granted"
	StateDenied  State = "denied"
	StateExpired State = "expired"
	StateFailed  State = "failed"
)

// Session tracks one in-flight device authorization.
type Session struct {
	ChatID    int64
	State     State
	UserCode  string
	StartedAt time.Time
}

// Notifier delivers device-flow prompts and terminal notices to a chat.
type Notifier interface {
	SendMarkdown(chatID int64, text string) error
}

// Authorizer starts and supervises device-flow sessions. At most one session
// runs per chat; a successful session overwrites the chat's stored
// credential.
type Authorizer struct {
	endpoint Endpoint
	users    *userstore.Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger

	flowCfg   config.DeviceFlowConfig
	googleCfg config.GoogleConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewAuthorizer creates an authorizer. A nil endpoint gets the Google
// endpoint built from the flow configuration.
func NewAuthorizer(endpoint Endpoint, users *userstore.Store, notifier Notifier, m *metrics.Metrics, logger *logging.Logger, flowCfg config.DeviceFlowConfig, googleCfg config.GoogleConfig) *Authorizer {
	if endpoint == nil {
		endpoint = NewGoogleEndpoint(flowCfg.DeviceCodeURL, flowCfg.TokenURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Authorizer{
		endpoint:  endpoint,
		users:     users,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		flowCfg:   flowCfg,
		googleCfg: googleCfg,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[int64]*Session),
	}
}

// ActiveSessions returns the number of sessions currently polling.
func (a *Authorizer) ActiveSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Begin starts a device-flow session for the chat: loads the OAuth client,
// requests a code, prompts the user, and polls in the background. Returns an
// error when a session for the chat is already running or the flow cannot be
// initialized.
func (a *Authorizer) Begin(ctx context.Context, chatID int64) error {
	creds, err := LoadClientCredentials(a.googleCfg.CredentialsFile)
	if err != nil {
		return err
	}

	code, err := a.endpoint.RequestCode(ctx, creds, a.googleCfg.Scopes)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if _, running := a.sessions[chatID]; running {
		a.mu.Unlock()
		return fmt.Errorf("authorization already in progress for chat %d", chatID)
	}
	session := &Session{
		ChatID:    chatID,
		State:     StatePending,
		UserCode:  code.UserCode,
		StartedAt: time.Now(),
	}
	a.sessions[chatID] = session
	a.mu.Unlock()

	if err := a.notifier.SendMarkdown(chatID, telegram.FormatDeviceFlowPrompt(code.UserCode, code.URL())); err != nil {
		a.finish(session, StateFailed)
		return err
	}

	a.metrics.DeviceFlowActive.Inc()
	a.logger.Info("device flow started",
		"chat_id", chatID,
		"user_code", code.UserCode,
		"interval_s", code.Interval)

	a.wg.Add(1)
	go a.poll(session, creds, code)
	return nil
}

// Stop aborts all in-flight sessions and waits for their goroutines.
func (a *Authorizer) Stop() {
	a.cancel()
	a.wg.Wait()
}

// poll drives one session to a terminal state. Exactly one terminal
// notification reaches the user.
func (a *Authorizer) poll(session *Session, creds *ClientCredentials, code *DeviceCode) {
	defer a.wg.Done()
	defer a.metrics.DeviceFlowActive.Dec()

	interval := a.flowCfg.DefaultInterval
	if code.Interval > 0 {
		interval = time.Duration(code.Interval) * time.Second
	}
	deadline := time.Now().Add(a.flowCfg.PollCeiling)

	for {
		select {
		case <-a.ctx.Done():
			a.finish(session, StateFailed)
			return
		case <-time.After(interval):
		}

		if time.Now().After(deadline) {
			a.finish(session, StateExpired)
			_ = a.notifier.SendMarkdown(session.ChatID, telegram.FormatAuthFailure("The authorization window expired."))
			return
		}

		resp, err := a.endpoint.PollToken(a.ctx, creds, code.DeviceCode)
		if err != nil {
			// Transport trouble is not a user decision. Keep polling
			// until the window closes.
			a.logger.Warn("device flow poll failed", "chat_id", session.ChatID, "error", err.Error())
			continue
		}

		switch {
		case resp.AccessToken != "":
			if err := a.persistGrant(session.ChatID, creds, resp); err != nil {
				a.logger.Error("persisting credential failed", "chat_id", session.ChatID, "error", err.Error())
				a.finish(session, StateFailed)
				_ = a.notifier.SendMarkdown(session.ChatID, telegram.FormatAuthFailure("Saving the credential failed."))
				return
			}
			a.finish(session, StateGranted)
			_ = a.notifier.SendMarkdown(session.ChatID, telegram.FormatAuthSuccess())
			return

		case resp.Error == "authorization_pending":
			continue

		case resp.Error == "slow_down":
			interval += a.flowCfg.SlowDownIncrement
			a.logger.Debug("device flow backing off", "chat_id", session.ChatID, "interval", interval.String())
			continue

		case resp.Error == "access_denied":
			a.finish(session, StateDenied)
			_ = a.notifier.SendMarkdown(session.ChatID, telegram.FormatAuthFailure("The request was denied."))
			return

		default:
			a.finish(session, StateFailed)
			_ = a.notifier.SendMarkdown(session.ChatID, telegram.FormatAuthFailure(fmt.Sprintf("Authorization failed: %s", resp.Error)))
			return
		}
	}
}

// persistGrant writes the credential and its authorization timestamp. The
// timestamp becomes the poll cursor so pre-existing unread mail is skipped.
func (a *Authorizer) persistGrant(chatID int64, creds *ClientCredentials, resp *TokenResponse) error {
	cred := &userstore.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenURL:     a.flowCfg.TokenURL,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       a.googleCfg.Scopes,
	}
	if resp.ExpiresIn > 0 {
		cred.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	if err := a.users.SaveCredential(chatID, cred); err != nil {
		return err
	}
	return a.users.SaveMeta(chatID, &userstore.Meta{AuthorizedAt: time.Now().Unix()})
}

// finish records the terminal state and frees the chat's session slot.
func (a *Authorizer) finish(session *Session, state State) {
	a.mu.Lock()
	session.State = state
	delete(a.sessions, session.ChatID)
	a.mu.Unlock()

	a.metrics.RecordDeviceFlowSession(string(state))
	a.logger.Info("device flow finished",
		"chat_id", session.ChatID,
		"outcome", string(state))
}
