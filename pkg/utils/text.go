// Package utils provides shared utilities for text, math, and logging.
package utils

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// TruncateLeft keeps the last maxLen characters of s, prefixed with "...".
// Useful for URLs, where the file name at the end is the informative part.
func TruncateLeft(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return "..." + string(r[len(r)-maxLen:])
}
