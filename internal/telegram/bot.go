package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mailherald/mailherald/internal/errors"
)

// Message represents a message received by the bot
type Message struct {
	ID        int64
	ChatID    int64
	Text      string
	Timestamp time.Time
}

// BotAPI interface for Telegram bot operations (allows mocking in tests)
type BotAPI interface {
	SendMessage(chatID int64, text string) error
	GetUpdates() ([]Message, error)
}

// ParseModeSender allows sending messages with parse mode (HTML/Markdown).
type ParseModeSender interface {
	SendMessageWithParseMode(chatID int64, text string, parseMode string) error
}

// RateLimiter implements token bucket algorithm for rate limiting
type RateLimiter struct {
	rate       int // messages per minute
	bucketSize int // burst size
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(messagesPerMinute int) *RateLimiter {
	return &RateLimiter{
		rate:       messagesPerMinute,
		bucketSize: messagesPerMinute,
		tokens:     float64(messagesPerMinute),
		lastUpdate: time.Now(),
	}
}

// Allow checks if a message can be sent
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Minutes()
	rl.lastUpdate = now

	// Add tokens based on elapsed time
	rl.tokens += float64(rl.rate) * elapsed
	if rl.tokens > float64(rl.bucketSize) {
		rl.tokens = float64(rl.bucketSize)
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// DedupLimiter prevents duplicate messages within a time window
type DedupLimiter struct {
	sent   map[string]time.Time
	window time.Duration
	mu     sync.Mutex
}

// NewDedupLimiter creates a new deduplication limiter
func NewDedupLimiter(window time.Duration) *DedupLimiter {
	return &DedupLimiter{
		sent:   make(map[string]time.Time),
		window: window,
	}
}

// CanSend checks if a message can be sent (not a duplicate)
func (dl *DedupLimiter) CanSend(key string) bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	now := time.Now()
	if sentAt, exists := dl.sent[key]; exists {
		if now.Sub(sentAt) < dl.window {
			return false
		}
	}
	dl.sent[key] = now
	return true
}

// Cleanup removes old entries from the dedup limiter
func (dl *DedupLimiter) Cleanup() {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	now := time.Now()
	for key, sentAt := range dl.sent {
		if now.Sub(sentAt) > dl.window {
			delete(dl.sent, key)
		}
	}
}

// SystemStatus is reported by the /status command
type SystemStatus struct {
	AuthorizedUsers int
	ActiveSessions  int
	PollInterval    time.Duration
	Uptime          time.Duration
}

// BotOptions contains optional configuration for the bot
type BotOptions struct {
	RateLimiter  *RateLimiter
	DedupLimiter *DedupLimiter
	BotAPI       BotAPI
}

// Bot is the Telegram front end: it receives user and admin commands and
// delivers device-flow prompts and email notifications.
type Bot struct {
	botToken    string
	adminChatID int64
	enabled     bool
	rateLimiter *RateLimiter
	dedup       *DedupLimiter
	api         BotAPI

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	msgChan chan Message

	// Callbacks for command handlers
	onGrant  func(targetChatID int64) error
	onStatus func() (*SystemStatus, error)
}

// NewBot creates a new Telegram bot
func NewBot(botToken string, adminChatID int64, enabled bool, opts *BotOptions) *Bot {
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		botToken:    botToken,
		adminChatID: adminChatID,
		enabled:     enabled,
		ctx:         ctx,
		cancel:      cancel,
		msgChan:     make(chan Message, 100),
	}

	if opts != nil {
		if opts.RateLimiter != nil {
			b.rateLimiter = opts.RateLimiter
		}
		if opts.DedupLimiter != nil {
			b.dedup = opts.DedupLimiter
		}
		if opts.BotAPI != nil {
			b.api = opts.BotAPI
		}
	}

	if b.rateLimiter == nil {
		b.rateLimiter = NewRateLimiter(30) // 30 messages per minute
	}

	// Dedup guards one-shot notices such as "credential expired".
	if b.dedup == nil {
		b.dedup = NewDedupLimiter(24 * time.Hour)
	}

	return b
}

// SetGrantCallback sets the callback starting a device-flow authorization
func (b *Bot) SetGrantCallback(cb func(targetChatID int64) error) {
	b.onGrant = cb
}

// SetStatusCallback sets the callback for the /status command
func (b *Bot) SetStatusCallback(cb func() (*SystemStatus, error)) {
	b.onStatus = cb
}

// AdminChatID returns the configured admin chat
func (b *Bot) AdminChatID() int64 {
	return b.adminChatID
}

// IsEnabled returns whether the bot is enabled
func (b *Bot) IsEnabled() bool {
	return b.enabled
}

// Start starts the bot
func (b *Bot) Start() error {
	if !b.enabled {
		return nil
	}

	if b.botToken == "" {
		return fmt.Errorf("bot token is required")
	}

	b.wg.Add(1)
	go b.processMessages()

	b.wg.Add(1)
	go b.dedupCleanup()

	if b.api != nil {
		b.wg.Add(1)
		go b.pollUpdates()
	}

	return nil
}

// Stop gracefully stops the bot
func (b *Bot) Stop() error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for bot to stop")
	}
}

// processMessages processes incoming messages
func (b *Bot) processMessages() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-b.msgChan:
			if !ok {
				return
			}
			b.handleMessage(msg)
		}
	}
}

// pollUpdates polls the Telegram API for updates and forwards them to the message channel.
func (b *Bot) pollUpdates() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		updates, err := b.api.GetUpdates()
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}

		if len(updates) == 0 {
			time.Sleep(250 * time.Millisecond)
			continue
		}

		for _, msg := range updates {
			select {
			case <-b.ctx.Done():
				return
			case b.msgChan <- msg:
			default:
				// Drop if buffer is full to avoid blocking
			}
		}
	}
}

// dedupCleanup periodically cleans up old dedup entries
func (b *Bot) dedupCleanup() {
	defer b.wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.dedup.Cleanup()
		}
	}
}

// SendTo sends a plain-text message to the given chat
func (b *Bot) SendTo(chatID int64, text string) error {
	if !b.enabled {
		return nil
	}

	if !b.rateLimiter.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}

	if b.api != nil {
		if err := b.api.SendMessage(chatID, text); err != nil {
			return &errors.ErrTelegramSend{ChatID: chatID, Err: err}
		}
	}

	return nil
}

// SendMarkdown sends a Markdown-formatted message to the given chat,
// degrading to plain text when the client cannot set a parse mode.
func (b *Bot) SendMarkdown(chatID int64, text string) error {
	if !b.enabled {
		return nil
	}

	if !b.rateLimiter.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}

	if b.api == nil {
		return nil
	}

	var err error
	if sender, ok := b.api.(ParseModeSender); ok {
		err = sender.SendMessageWithParseMode(chatID, text, "Markdown")
	} else {
		err = b.api.SendMessage(chatID, text)
	}
	if err != nil {
		return &errors.ErrTelegramSend{ChatID: chatID, Err: err}
	}
	return nil
}

// SendOnce sends a message at most once per dedup window for the given key.
// Used for terminal notices that must not repeat every poll cycle.
func (b *Bot) SendOnce(key string, chatID int64, text string) error {
	if !b.dedup.CanSend(key) {
		return nil
	}
	return b.SendMarkdown(chatID, text)
}
