package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatEmailNotification(t *testing.T) {
	msg := FormatEmailNotification("alice@example.com", "Hello", "short body")

	assert.True(t, strings.HasPrefix(msg, "📧 *New Email*"))
	assert.Contains(t, msg, "*From:* alice@example.com")
	assert.Contains(t, msg, "*Subject:* Hello")
	assert.Contains(t, msg, "short body")
	assert.NotContains(t, msg, "...")
}

func TestFormatEmailNotificationTruncatesLongBody(t *testing.T) {
	body := strings.Repeat("x", 2000)
	msg := FormatEmailNotification("a@b.c", "s", body)

	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Contains(t, msg, strings.Repeat("x", maxBodyRunes))
	assert.NotContains(t, msg, strings.Repeat("x", maxBodyRunes+1))
}

func TestFormatEmailNotificationCountsRunes(t *testing.T) {
	body := strings.Repeat("ж", maxBodyRunes+1)
	msg := FormatEmailNotification("a@b.c", "s", body)

	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Contains(t, msg, strings.Repeat("ж", maxBodyRunes))
}

func TestFormatDeviceFlowPrompt(t *testing.T) {
	msg := FormatDeviceFlowPrompt("ABCD-EFGH", "https://www.google.com/device")

	assert.Contains(t, msg, "🔑")
	assert.Contains(t, msg, "ABCD-EFGH")
	assert.Contains(t, msg, "https://www.google.com/device")
}

func TestFormatAccessRequest(t *testing.T) {
	msg := FormatAccessRequest("bob@example.com", 77)

	assert.Contains(t, msg, "bob@example.com")
	assert.Contains(t, msg, "/grant 77")
}

func TestFormatAuthNotices(t *testing.T) {
	assert.Contains(t, FormatAuthSuccess(), "✅")
	assert.Contains(t, FormatAuthFailure("access_denied"), "access_denied")
	assert.Contains(t, FormatCredentialExpired(), "expired")
}

func TestFormatStatus(t *testing.T) {
	msg := FormatStatus(&SystemStatus{
		AuthorizedUsers: 2,
		ActiveSessions:  1,
		PollInterval:    time.Minute,
		Uptime:          90 * time.Second,
	})

	assert.Contains(t, msg, "*Authorized users:* 2")
	assert.Contains(t, msg, "*Active auth sessions:* 1")
	assert.Contains(t, msg, "1m0s")
	assert.Contains(t, msg, "1m30s")
}
