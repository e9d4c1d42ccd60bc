package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// handleMessage processes an incoming message
func (b *Bot) handleMessage(msg Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(msg.ChatID, text)
		return
	}

	// A bare email address is a request for access: forward it to the
	// admin with a ready-to-send grant command.
	if emailPattern.MatchString(text) {
		b.handleAccessRequest(msg.ChatID, text)
		return
	}

	_ = b.SendTo(msg.ChatID, "I didn't understand that. Send your email address to request access.")
}

// handleCommand handles slash commands
func (b *Bot) handleCommand(chatID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/start":
		b.handleStart(chatID)
	case "/help":
		b.handleHelp(chatID)
	case "/grant":
		b.handleGrant(chatID, args)
	case "/status":
		b.handleStatus(chatID)
	default:
		_ = b.SendTo(chatID, fmt.Sprintf("Unknown command: %s. Type /help for available commands.", command))
	}
}

// handleStart handles the /start command
func (b *Bot) handleStart(chatID int64) {
	_ = b.SendMarkdown(chatID, FormatWelcome())
}

// handleHelp handles the /help command
func (b *Bot) handleHelp(chatID int64) {
	_ = b.SendMarkdown(chatID, FormatHelp(chatID == b.adminChatID))
}

// handleAccessRequest forwards an access request to the admin chat.
func (b *Bot) handleAccessRequest(chatID int64, email string) {
	if err := b.SendMarkdown(b.adminChatID, FormatAccessRequest(email, chatID)); err != nil {
		_ = b.SendTo(chatID, fmt.Sprintf("Error contacting admin: %v", err))
		return
	}
	_ = b.SendTo(chatID, "Request sent to the operator. Please wait for approval.")
}

// handleGrant handles the admin-only /grant command. Non-admin invocations
// are silently ignored, matching the access-request flow the requester saw.
func (b *Bot) handleGrant(chatID int64, args []string) {
	if chatID != b.adminChatID {
		return
	}

	if len(args) == 0 {
		_ = b.SendTo(chatID, "Usage: /grant <chat_id>")
		return
	}

	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_ = b.SendTo(chatID, fmt.Sprintf("Invalid chat id: %s", args[0]))
		return
	}

	if b.onGrant == nil {
		_ = b.SendTo(chatID, "Authorization is not configured")
		return
	}

	if err := b.onGrant(target); err != nil {
		_ = b.SendTo(chatID, fmt.Sprintf("Error starting flow: %v", err))
		return
	}

	_ = b.SendTo(chatID, fmt.Sprintf("Code sent to %d. Polling for completion...", target))
}

// handleStatus handles the admin-only /status command
func (b *Bot) handleStatus(chatID int64) {
	if chatID != b.adminChatID {
		return
	}

	if b.onStatus == nil {
		_ = b.SendTo(chatID, "Status is not available")
		return
	}

	status, err := b.onStatus()
	if err != nil {
		_ = b.SendTo(chatID, fmt.Sprintf("Error getting status: %v", err))
		return
	}

	_ = b.SendMarkdown(chatID, FormatStatus(status))
}
