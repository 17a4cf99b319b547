package ui

import (
	"fmt"
	"strings"
	"time"
)

// FormatClock renders a media length as MM:SS, or HH:MM:SS when it runs
// an hour or longer. Unknown lengths render as N/A.
func FormatClock(d time.Duration, known bool) string {
	if !known || d < 0 {
		return "N/A"
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Truncate shortens text to at most max runes, marking the cut with an ellipsis
func Truncate(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	if d < time.Second {
		return fmt.Sprintf("%.1fs", float64(d)/float64(time.Second))
	}

	if d < time.Minute {
		seconds := float64(d) / float64(time.Second)
		if seconds == float64(int(seconds)) {
			return fmt.Sprintf("%.0fs", seconds)
		}
		formatted := fmt.Sprintf("%.2f", seconds)
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
		return formatted + "s"
	}

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second

	if hours > 0 {
		if minutes > 0 && seconds > 0 {
			return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
		} else if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		} else if seconds > 0 {
			return fmt.Sprintf("%dh%ds", hours, seconds)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if minutes > 0 {
		if seconds > 0 {
			return fmt.Sprintf("%dm%ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%ds", seconds)
}
