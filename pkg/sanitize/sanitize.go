package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// NotificationText cleans user-visible notification text. HTML tags and
// control characters are stripped because the text ends up in platform
// push payloads and banner UI verbatim.
func NotificationText(input string) string {
	input = htmlTagRegex.ReplaceAllString(input, "")
	input = StripControlCharacters(input)
	return strings.TrimSpace(input)
}

// SoundName restricts custom sound identifiers to a safe character set
func SoundName(name string) string {
	name = strings.TrimSpace(name)
	reg := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	return reg.ReplaceAllString(name, "")
}

// DeviceToken strips whitespace and control characters from a raw token
func DeviceToken(token string) string {
	token = StripControlCharacters(token)
	return strings.TrimSpace(token)
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// TruncateRunes shortens a string to at most n runes without splitting a
// multi-byte character
func TruncateRunes(input string, n int) string {
	if utf8.RuneCountInString(input) <= n {
		return input
	}
	runes := []rune(input)
	return string(runes[:n])
}
