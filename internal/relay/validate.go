package relay

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Text message bounds. Payloads outside these limits are dropped before
// moderation ever sees them.
const (
	// MaxTextChars caps the rune count of a single chat message.
	MaxTextChars = 2000
)

var (
	errEmptyText   = errors.New("relay: empty message")
	errTextTooLong = errors.New("relay: message exceeds length limit")
	errInvalidUTF8 = errors.New("relay: message is not valid UTF-8")
)

// validateText rejects empty, oversized, and malformed message bodies.
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyText
	}
	if !utf8.ValidString(text) {
		return errInvalidUTF8
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return errTextTooLong
	}
	return nil
}
