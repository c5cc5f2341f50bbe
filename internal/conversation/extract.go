package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	zipPattern   = regexp.MustCompile(`\b\d{5}\b`)

	affirmativeWords = []string{"yes", "yep", "yeah", "confirm", "sure"}
	negativeWords    = []string{"no", "nope", "cancel", "stop"}
)

// ExtractPhone returns the digits of text when there are at least ten.
func ExtractPhone(text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if len(digits) >= 10 {
		return digits
	}
	return ""
}

// ExtractEmail returns the first email-shaped substring of text.
func ExtractEmail(text string) string {
	return emailPattern.FindString(text)
}

// ExtractZip returns the first standalone five digit token.
func ExtractZip(text string) string {
	return zipPattern.FindString(text)
}

func IsAffirmative(text string) bool {
	return containsWord(text, affirmativeWords)
}

// IsNegative matches by substring, so "not" and "know" count as negative.
func IsNegative(text string) bool {
	return containsWord(text, negativeWords)
}

func containsWord(text string, words []string) bool {
	lowered := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// parseSelection reads a bare positive integer. It returns the zero-based
// index and whether text was a number at all; the index may be out of range.
func parseSelection(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.IndexFunc(trimmed, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 {
		return -1, true
	}
	return n - 1, true
}

func inRange(idx, n int) bool {
	return idx >= 0 && idx < n
}
