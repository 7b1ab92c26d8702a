// Package display formats values for dashboard output.
package display

import (
	"fmt"
	"strings"
	"time"
)

// TimeAgo converts a timestamp to a short relative string such as
// "5m ago" or "2h ago". Future timestamps collapse to "just now".
func TimeAgo(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}

	delta := time.Since(ts)
	if delta < 0 {
		return "just now"
	}

	switch {
	case delta < time.Minute:
		return fmt.Sprintf("%ds ago", int(delta.Seconds()))
	case delta < time.Hour:
		return fmt.Sprintf("%dm ago", int(delta.Minutes()))
	case delta < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(delta.Hours()))
	case delta < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(delta.Hours()/24))
	default:
		return fmt.Sprintf("%dmo ago", int(delta.Hours()/24/30))
	}
}

// Currency formats a number as a dollar amount with thousands separators,
// e.g. Currency(45000, 2) == "$45,000.00".
func Currency(value float64, decimals int) string {
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	s := fmt.Sprintf("%.*f", decimals, value)
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i:]
	}
	return sign + "$" + groupThousands(whole) + frac
}

// LargeNumber renders dollar amounts with K/M/B suffixes, e.g. "$2.30B".
func LargeNumber(value float64) string {
	switch {
	case value >= 1e9:
		return fmt.Sprintf("$%.2fB", value/1e9)
	case value >= 1e6:
		return fmt.Sprintf("$%.2fM", value/1e6)
	case value >= 1e3:
		return fmt.Sprintf("$%.2fK", value/1e3)
	default:
		return fmt.Sprintf("$%.2f", value)
	}
}

// Truncate shortens text to maxLength runes including the ellipsis suffix.
func Truncate(text string, maxLength int) string {
	const suffix = "..."
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	if maxLength <= len(suffix) {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-len(suffix)]) + suffix
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}
