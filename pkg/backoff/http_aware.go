package backoff

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxHintInput bounds how much extractor output is scanned for hints.
const maxHintInput = 10 * 1024

// RetryHint extracts server-specified retry timing from extractor error
// output. Extractors usually echo the HTTP status line and, when the site
// sends one, a Retry-After header or a JSON body with a retry field.
type RetryHint struct {
	maxRetryAfter time.Duration
	now           func() time.Time

	retryAfterPattern     *regexp.Regexp
	rateLimitPattern      *regexp.Regexp
	rateLimitResetPattern *regexp.Regexp
}

// NewRetryHint creates a hint parser. maxRetryAfter caps any parsed value
// (0 means no cap).
func NewRetryHint(maxRetryAfter time.Duration) *RetryHint {
	return &RetryHint{
		maxRetryAfter:         maxRetryAfter,
		now:                   time.Now,
		retryAfterPattern:     regexp.MustCompile(`(?i)retry-after:\s*(\d+)`),
		rateLimitPattern:      regexp.MustCompile(`(?i)x-ratelimit-retry-after:\s*(\d+)`),
		rateLimitResetPattern: regexp.MustCompile(`(?i)x-ratelimit-reset:\s*(\d+)`),
	}
}

// Parse returns the retry delay found in output, or 0 when there is none
func (h *RetryHint) Parse(output string) time.Duration {
	if len(output) > maxHintInput {
		output = output[:maxHintInput]
	}

	if delay := h.parseRetryAfterHeader(output); delay > 0 {
		return h.capDelay(delay)
	}

	if delay := h.parseRateLimitHeaders(output); delay > 0 {
		return h.capDelay(delay)
	}

	if delay := h.parseJSONResponse(output); delay > 0 {
		return h.capDelay(delay)
	}

	return 0
}

func (h *RetryHint) parseRetryAfterHeader(output string) time.Duration {
	matches := h.retryAfterPattern.FindStringSubmatch(output)
	if len(matches) < 2 {
		return 0
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(matches[1]))
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

func (h *RetryHint) parseRateLimitHeaders(output string) time.Duration {
	matches := h.rateLimitPattern.FindStringSubmatch(output)
	if len(matches) >= 2 {
		seconds, err := strconv.Atoi(strings.TrimSpace(matches[1]))
		if err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// X-RateLimit-Reset carries a unix timestamp
	matches = h.rateLimitResetPattern.FindStringSubmatch(output)
	if len(matches) >= 2 {
		timestamp, err := strconv.ParseInt(strings.TrimSpace(matches[1]), 10, 64)
		if err == nil {
			if delay := time.Unix(timestamp, 0).Sub(h.now()); delay > 0 {
				return delay
			}
		}
	}

	return 0
}

var retryFields = []string{"retry_after", "retry_after_seconds", "retryAfter", "retryAfterSeconds", "retry_in"}

func (h *RetryHint) parseJSONResponse(output string) time.Duration {
	if !strings.Contains(output, "{") {
		return 0
	}

	start := 0
	for {
		jsonStart := strings.Index(output[start:], "{")
		if jsonStart == -1 {
			break
		}
		jsonStart += start

		jsonEnd := findMatchingBrace(output, jsonStart)
		if jsonEnd == -1 {
			start = jsonStart + 1
			continue
		}

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(output[jsonStart:jsonEnd+1]), &data); err != nil {
			start = jsonStart + 1
			continue
		}

		for _, field := range retryFields {
			value, exists := data[field]
			if !exists {
				continue
			}
			switch v := value.(type) {
			case float64:
				return time.Duration(v) * time.Second
			case string:
				if seconds, err := strconv.Atoi(v); err == nil {
					return time.Duration(seconds) * time.Second
				}
			}
		}

		start = jsonEnd + 1
	}

	return 0
}

// findMatchingBrace finds the index of the closing brace that matches the opening brace at start
func findMatchingBrace(s string, start int) int {
	if start >= len(s) || s[start] != '{' {
		return -1
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

func (h *RetryHint) capDelay(delay time.Duration) time.Duration {
	if h.maxRetryAfter > 0 && delay > h.maxRetryAfter {
		return h.maxRetryAfter
	}
	return delay
}
