// Package poller drives the poll-and-notify cycle: every interval it walks
// the authorized users, lists their unread mail, filters what was already
// notified, and delivers one chat message per new email.
package poller

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/mailherald/mailherald/internal/config"
	apperrors "github.com/mailherald/mailherald/internal/errors"
	"github.com/mailherald/mailherald/internal/extract"
	"github.com/mailherald/mailherald/internal/gmail"
	"github.com/mailherald/mailherald/internal/history"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/metrics"
	"github.com/mailherald/mailherald/internal/summarize"
	"github.com/mailherald/mailherald/internal/telegram"
	"github.com/mailherald/mailherald/internal/userstore"
)

// Mailbox is the per-user Gmail surface the engine polls.
type Mailbox interface {
	ListUnreadAfter(ctx context.Context, after, max int64) ([]*gmailapi.Message, error)
	GetMessage(ctx context.Context, id string) (*gmailapi.Message, error)
	MarkRead(ctx context.Context, id string) error
}

// MailboxResolver turns a chat ID into a ready Gmail client.
type MailboxResolver interface {
	Resolve(ctx context.Context, chatID int64) (Mailbox, error)
}

// Notifier delivers notifications to chats.
type Notifier interface {
	SendMarkdown(chatID int64, text string) error
	SendOnce(key string, chatID int64, text string) error
}

// StoreResolver builds Gmail clients from stored credentials, writing
// refreshed access tokens back to the user store.
type StoreResolver struct {
	users  *userstore.Store
	logger *logging.Logger
}

// NewStoreResolver creates a resolver backed by the user store.
func NewStoreResolver(users *userstore.Store, logger *logging.Logger) *StoreResolver {
	return &StoreResolver{users: users, logger: logger}
}

// Resolve builds a Gmail client for the chat.
func (r *StoreResolver) Resolve(ctx context.Context, chatID int64) (Mailbox, error) {
	cred := r.users.LoadCredential(chatID)

	persist := func(tok *oauth2.Token) {
		if cred == nil {
			return
		}
		updated := *cred
		updated.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			updated.RefreshToken = tok.RefreshToken
		}
		updated.Expiry = tok.Expiry
		if err := r.users.SaveCredential(chatID, &updated); err != nil {
			r.logger.Warn("persisting refreshed token failed", "chat_id", chatID, "error", err.Error())
		}
	}

	return gmail.NewClient(ctx, chatID, cred, persist, r.logger)
}

// Engine is the poll-and-notify loop.
type Engine struct {
	users      *userstore.Store
	histories  *history.Store
	resolver   MailboxResolver
	notifier   Notifier
	summarizer summarize.Summarizer
	metrics    *metrics.Metrics
	logger     *logging.Logger
	cfg        config.PollerConfig

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	inFlight map[int64]bool
}

// NewEngine creates the engine. A nil summarizer disables summarization and
// every notification uses the raw excerpt format.
func NewEngine(users *userstore.Store, histories *history.Store, resolver MailboxResolver, notifier Notifier, summarizer summarize.Summarizer, m *metrics.Metrics, logger *logging.Logger, cfg config.PollerConfig) *Engine {
	return &Engine{
		users:      users,
		histories:  histories,
		resolver:   resolver,
		notifier:   notifier,
		summarizer: summarizer,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		inFlight:   make(map[int64]bool),
	}
}

// Start launches the poll loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}

	e.running = true
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.pollLoop(ctx)

	return nil
}

// Stop gracefully shuts down the engine, waiting for in-flight user polls.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	stopCh := e.stopCh
	e.mu.Unlock()

	close(stopCh)
	e.wg.Wait()

	return nil
}

// IsRunning returns true if the engine is running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Interval returns the configured poll interval.
func (e *Engine) Interval() time.Duration {
	return e.cfg.Interval
}

func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	e.poll(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// poll runs one cycle over all authorized users. Users still busy from the
// previous cycle are skipped rather than polled concurrently with
// themselves.
func (e *Engine) poll(ctx context.Context) {
	for _, chatID := range e.users.ListUsers() {
		e.mu.Lock()
		if e.inFlight[chatID] {
			e.mu.Unlock()
			e.metrics.RecordPollCycle("skipped_busy")
			continue
		}
		e.inFlight[chatID] = true
		e.mu.Unlock()

		e.wg.Add(1)
		go func(chatID int64) {
			defer e.wg.Done()
			defer func() {
				e.mu.Lock()
				delete(e.inFlight, chatID)
				e.mu.Unlock()
			}()

			userCtx := logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
			userCtx, cancel := context.WithTimeout(userCtx, e.cfg.Timeout)
			defer cancel()

			e.pollUser(userCtx, chatID)
		}(chatID)
	}
}

// pollUser runs one cycle for one user.
func (e *Engine) pollUser(ctx context.Context, chatID int64) {
	mailbox, err := e.resolver.Resolve(ctx, chatID)
	if err != nil {
		if _, unusable := err.(*apperrors.ErrCredentialUnusable); unusable {
			_ = e.notifier.SendOnce("credential-expired:"+strconv.FormatInt(chatID, 10), chatID, telegram.FormatCredentialExpired())
			e.metrics.RecordPollCycle("credential_unusable")
			e.logger.WarnWithContext(ctx, "credential unusable", "chat_id", chatID, "error", err.Error())
			return
		}
		e.metrics.RecordPollCycle("error")
		e.logger.ErrorWithContext(ctx, "building mailbox client failed", "chat_id", chatID, "error", err.Error())
		return
	}

	var after int64
	if meta := e.users.LoadMeta(chatID); meta != nil {
		after = meta.AuthorizedAt
	}

	messages, err := mailbox.ListUnreadAfter(ctx, after, e.cfg.MaxResults)
	if err != nil {
		e.metrics.RecordGmailError("list")
		e.metrics.RecordPollCycle("error")
		e.logger.ErrorWithContext(ctx, "listing unread mail failed", "chat_id", chatID, "error", err.Error())
		return
	}

	if len(messages) == 0 {
		e.metrics.RecordPollCycle("empty")
		return
	}

	seen := e.histories.Load(chatID, "")
	changed := false

	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}

		if seen[msg.Id] {
			e.metrics.RecordMessage("duplicate")
			continue
		}

		if e.notifyOne(ctx, chatID, mailbox, msg.Id) {
			seen[msg.Id] = true
			changed = true
		}
	}

	if changed {
		if err := e.histories.Save(chatID, seen, ""); err != nil {
			e.logger.ErrorWithContext(ctx, "saving history failed", "chat_id", chatID, "error", err.Error())
		}
	}

	e.metrics.RecordPollCycle("success")
}

// notifyOne fetches, renders, and delivers one message, then marks it read.
// Returns true when the notification reached the chat; only then does the
// message enter the history so a failed send is retried next cycle.
func (e *Engine) notifyOne(ctx context.Context, chatID int64, mailbox Mailbox, id string) bool {
	full, err := mailbox.GetMessage(ctx, id)
	if err != nil {
		e.metrics.RecordGmailError("get")
		e.metrics.RecordMessage("fetch_failed")
		e.logger.WarnWithContext(ctx, "fetching message failed", "chat_id", chatID, "message_id", id, "error", err.Error())
		return false
	}

	sender := gmail.Header(full, "From")
	subject := gmail.Header(full, "Subject")
	body := extract.Extract(full.Payload)
	if body == extract.NoReadableContent {
		e.metrics.ExtractionFallbacks.Inc()
	}

	text := e.render(ctx, sender, subject, body)
	if err := e.notifier.SendMarkdown(chatID, text); err != nil {
		e.metrics.TelegramSendErrors.Inc()
		e.metrics.RecordMessage("send_failed")
		e.logger.WarnWithContext(ctx, "sending notification failed", "chat_id", chatID, "message_id", id, "error", err.Error())
		return false
	}
	e.metrics.RecordNotification("email")
	e.metrics.RecordMessage("notified")

	// The notification is out either way; a failed mark-read only risks a
	// duplicate listing, which the history filter absorbs.
	if err := mailbox.MarkRead(ctx, id); err != nil {
		e.metrics.RecordGmailError("mark_read")
		e.logger.WarnWithContext(ctx, "marking message read failed", "chat_id", chatID, "message_id", id, "error", err.Error())
	}

	return true
}

// render produces the chat text: a model summary when available, otherwise
// the raw excerpt format.
func (e *Engine) render(ctx context.Context, sender, subject, body string) string {
	if e.summarizer != nil {
		summary, err := e.summarizer.Summarize(ctx, body, subject, sender)
		if err == nil {
			return telegram.FormatSummaryNotification(sender, subject, summary)
		}
		e.metrics.SummarizerFallbacks.Inc()
		e.logger.WarnWithContext(ctx, "summarization failed", "error", err.Error())
	}
	return telegram.FormatEmailNotification(sender, subject, body)
}
