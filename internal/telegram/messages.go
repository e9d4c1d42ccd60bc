package telegram

import (
	"fmt"
	"strings"
	"time"
)

// maxBodyRunes caps the body excerpt embedded in a fallback notification.
const maxBodyRunes = 500

// FormatWelcome formats the /start greeting.
func FormatWelcome() string {
	return "👋 *Welcome to MailHerald*\n\n" +
		"I watch a Gmail inbox and forward new unread mail here.\n\n" +
		"Send your email address to request access, or type /help."
}

// FormatHelp formats the /help message. Admin-only commands are listed only
// for the admin chat.
func FormatHelp(isAdmin bool) string {
	var sb strings.Builder
	sb.WriteString("*Commands*\n")
	sb.WriteString("/start - show the welcome message\n")
	sb.WriteString("/help - show this message\n")
	sb.WriteString("\nSend your email address to request access.")
	if isAdmin {
		sb.WriteString("\n\n*Admin*\n")
		sb.WriteString("/grant <chat\\_id> - authorize a user's mailbox\n")
		sb.WriteString("/status - show system status")
	}
	return sb.String()
}

// FormatAccessRequest formats the admin notice for a pending access request.
func FormatAccessRequest(email string, chatID int64) string {
	return fmt.Sprintf("🔔 *Access Request*\n*Email:* %s\n*Chat:* %d\n\nApprove with:\n`/grant %d`",
		email, chatID, chatID)
}

// FormatDeviceFlowPrompt formats the verification instructions sent to a user
// when a device-flow session starts.
func FormatDeviceFlowPrompt(userCode, verificationURL string) string {
	return fmt.Sprintf("🔑 *Authorize Gmail Access*\n\nOpen %s and enter the code:\n\n`%s`\n\nI'll let you know once it's done.",
		verificationURL, userCode)
}

// FormatAuthSuccess formats the terminal success notice of a device flow.
func FormatAuthSuccess() string {
	return "✅ *Gmail connected*\n\nYou'll get a message here whenever new mail arrives."
}

// FormatAuthFailure formats the terminal failure notice of a device flow.
func FormatAuthFailure(reason string) string {
	return fmt.Sprintf("❌ *Authorization failed*\n\n%s\n\nAsk the operator to send a new code.", reason)
}

// FormatCredentialExpired formats the one-shot notice sent when a stored
// credential can no longer be used or refreshed.
func FormatCredentialExpired() string {
	return "⚠️ *Gmail access expired*\n\nYour authorization is no longer valid. Ask the operator to send a new code."
}

// FormatEmailNotification formats the raw notification used when no summary
// is available. The body excerpt is capped so a large email cannot blow the
// Telegram message size limit.
func FormatEmailNotification(sender, subject, body string) string {
	excerpt := body
	if runes := []rune(excerpt); len(runes) > maxBodyRunes {
		excerpt = string(runes[:maxBodyRunes]) + "..."
	}
	return fmt.Sprintf("📧 *New Email*\n*From:* %s\n*Subject:* %s\n\n%s", sender, subject, excerpt)
}

// FormatSummaryNotification formats a notification built around a summary.
func FormatSummaryNotification(sender, subject, summary string) string {
	return fmt.Sprintf("📧 *New Email*\n*From:* %s\n*Subject:* %s\n\n%s", sender, subject, summary)
}

// FormatStatus formats the /status report for the admin.
func FormatStatus(status *SystemStatus) string {
	return fmt.Sprintf("📊 *Status*\n*Authorized users:* %d\n*Active auth sessions:* %d\n*Poll interval:* %s\n*Uptime:* %s",
		status.AuthorizedUsers,
		status.ActiveSessions,
		status.PollInterval,
		status.Uptime.Round(time.Second))
}
