// Package extract turns a Gmail message payload tree into plain text
// suitable for chat notifications.
package extract

import (
	"encoding/base64"
	"regexp"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// NoReadableContent is returned when no part of the payload yields text.
const NoReadableContent = "(No readable content found)"

// maxDepth bounds recursion into nested multipart trees. The payload comes
// from a remote service and is not trusted to be shallow.
const maxDepth = 32

// maxLinks is the number of harvested hyperlinks kept per message.
const maxLinks = 3

var (
	tagPattern    = regexp.MustCompile(`<.*?>`)
	anchorPattern = regexp.MustCompile(`(?i)<a[^>]+href=["']([^"']+)["']`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// linkDenylist filters tracking and unsubscribe targets out of harvested
// links. Matching is case-insensitive substring.
var linkDenylist = []string{
	"unsubscribe",
	"mailto:",
	"tel:",
	"track",
	"click",
	"open.",
	"list-",
}

// Extract converts a Gmail message payload into readable plain text.
// Preference order: a decodable text/plain part, then a text/html part with
// markup stripped, then recursion into nested multiparts, then the payload's
// own body for single-part messages. Runs of whitespace are collapsed.
func Extract(payload *gmail.MessagePart) string {
	text := extract(payload, 0)
	if text == "" {
		return NoReadableContent
	}
	return text
}

func extract(payload *gmail.MessagePart, depth int) string {
	if payload == nil || depth > maxDepth {
		return ""
	}

	if len(payload.Parts) > 0 {
		for _, part := range payload.Parts {
			if part.MimeType != "text/plain" {
				continue
			}
			if text, ok := decodeBody(part); ok && !isNullText(text) {
				return collapseWhitespace(text)
			}
		}

		for _, part := range payload.Parts {
			if part.MimeType != "text/html" {
				continue
			}
			if html, ok := decodeBody(part); ok {
				return StripHTML(html)
			}
		}

		for _, part := range payload.Parts {
			if len(part.Parts) == 0 {
				continue
			}
			if text := extract(part, depth+1); text != "" && !isNullText(text) {
				return text
			}
		}

		return ""
	}

	// Single-part message: the payload carries its own body.
	if text, ok := decodeBody(payload); ok {
		if payload.MimeType == "text/html" {
			return StripHTML(text)
		}
		return collapseWhitespace(text)
	}

	return ""
}

// StripHTML removes tag markup from html and appends up to maxLinks harvested
// hyperlink targets as a trailing "Links:" section. Denylisted targets are
// discarded; the rest are deduplicated in first-seen order.
func StripHTML(html string) string {
	links := harvestLinks(html)

	text := collapseWhitespace(tagPattern.ReplaceAllString(html, " "))
	if len(links) > 0 {
		text += " \n\nLinks:\n" + strings.Join(links, "\n")
	}
	return text
}

func harvestLinks(html string) []string {
	matches := anchorPattern.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	links := make([]string, 0, maxLinks)
	for _, m := range matches {
		target := m[1]
		if isDenylisted(target) || seen[target] {
			continue
		}
		seen[target] = true
		links = append(links, target)
		if len(links) == maxLinks {
			break
		}
	}
	return links
}

func isDenylisted(target string) bool {
	lower := strings.ToLower(target)
	for _, marker := range linkDenylist {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// decodeBody decodes the base64url body data of a part. A missing body,
// empty data, or a decode failure all report !ok so the caller can move on
// to the next candidate part.
func decodeBody(part *gmail.MessagePart) (string, bool) {
	if part == nil || part.Body == nil || part.Body.Data == "" {
		return "", false
	}

	data, err := base64.URLEncoding.DecodeString(part.Body.Data)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return "", false
		}
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// isNullText reports whether the decoded text is empty or the literal
// string "null", which some senders emit for absent bodies.
func isNullText(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "" || strings.EqualFold(trimmed, "null")
}

func collapseWhitespace(text string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}
