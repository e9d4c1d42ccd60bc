package extract

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func part(mimeType, body string, children ...*gmail.MessagePart) *gmail.MessagePart {
	p := &gmail.MessagePart{
		MimeType: mimeType,
		Parts:    children,
	}
	if body != "" {
		p.Body = &gmail.MessagePartBody{Data: encode(body)}
	}
	return p
}

func TestPlainTextPreferredOverHTML(t *testing.T) {
	payload := part("multipart/alternative", "",
		part("text/html", "<b>rich version</b>"),
		part("text/plain", "plain version"),
	)

	assert.Equal(t, "plain version", Extract(payload))
}

func TestPlainTextWhitespaceCollapsed(t *testing.T) {
	payload := part("multipart/alternative", "",
		part("text/plain", "hello\n\n  world\t!"),
	)

	assert.Equal(t, "hello world !", Extract(payload))
}

func TestNullPlainTextSkipped(t *testing.T) {
	payload := part("multipart/alternative", "",
		part("text/plain", "  NULL \n"),
		part("text/html", "<p>actual content</p>"),
	)

	assert.Equal(t, "actual content", Extract(payload))
}

func TestHTMLFallbackStripsMarkup(t *testing.T) {
	payload := part("multipart/alternative", "",
		part("text/html", "<div><p>Hello</p><p>there</p></div>"),
	)

	assert.Equal(t, "Hello there", Extract(payload))
}

func TestNestedMultipartRecursion(t *testing.T) {
	payload := part("multipart/mixed", "",
		part("application/pdf", ""),
		part("multipart/alternative", "",
			part("text/plain", "nested body"),
		),
	)

	assert.Equal(t, "nested body", Extract(payload))
}

func TestSinglePartPlain(t *testing.T) {
	payload := part("text/plain", "just  a   note")
	assert.Equal(t, "just a note", Extract(payload))
}

func TestSinglePartHTMLWithLinks(t *testing.T) {
	payload := part("text/html",
		`<p>Hi <a href="http://x.com/unsubscribe">stop</a> <a href="http://y.com">y</a></p>`)

	assert.Equal(t, "Hi stop y \n\nLinks:\nhttp://y.com", Extract(payload))
}

func TestNoReadableContent(t *testing.T) {
	assert.Equal(t, NoReadableContent, Extract(part("multipart/mixed", "")))
	assert.Equal(t, NoReadableContent, Extract(nil))
	assert.Equal(t, NoReadableContent, Extract(&gmail.MessagePart{MimeType: "text/plain"}))
}

func TestMalformedBase64Skipped(t *testing.T) {
	payload := part("multipart/alternative", "",
		&gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: "!!!not-base64!!!"},
		},
		part("text/html", "<p>good sibling</p>"),
	)

	assert.Equal(t, "good sibling", Extract(payload))
}

func TestUnpaddedBase64Decoded(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body: &gmail.MessagePartBody{
			Data: base64.RawURLEncoding.EncodeToString([]byte("unpadded body")),
		},
	}

	assert.Equal(t, "unpadded body", Extract(payload))
}

func TestStripHTMLLinkRules(t *testing.T) {
	html := `<div>
		<a href="http://a.com/page">a</a>
		<a href="mailto:someone@example.com">mail</a>
		<a href="tel:+123456">call</a>
		<a href="http://t.co/track/123">tracked</a>
		<a href="http://a.com/page">duplicate</a>
		<a href="http://b.com">b</a>
		<a href="http://c.com">c</a>
		<a href="http://d.com">d</a>
	</div>`

	text := StripHTML(html)

	assert.Contains(t, text, "Links:\nhttp://a.com/page\nhttp://b.com\nhttp://c.com")
	assert.NotContains(t, text, "mailto:")
	assert.NotContains(t, text, "tel:")
	assert.NotContains(t, text, "track")
	assert.NotContains(t, text, "http://d.com")
}

func TestStripHTMLNoLinksNoSection(t *testing.T) {
	assert.Equal(t, "plain words", StripHTML("<p>plain words</p>"))
}

func TestDeepNestingBounded(t *testing.T) {
	// Build a tree deeper than maxDepth; extraction must return the
	// sentinel rather than recurse forever.
	leaf := part("multipart/mixed", "")
	root := leaf
	for i := 0; i < maxDepth*2; i++ {
		root = part("multipart/mixed", "", root)
	}

	assert.Equal(t, NoReadableContent, Extract(root))
}
