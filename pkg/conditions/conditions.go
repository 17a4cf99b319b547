package conditions

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shaneisley/snatch/pkg/backoff"
)

// DefaultRateLimitPattern matches the way extractors report HTTP 429
const DefaultRateLimitPattern = `429|Too Many Requests`

// Result represents the classification of a failed download
type Result struct {
	RateLimited bool
	Reason      string
	// Penalty is the backoff to request; zero unless RateLimited.
	Penalty time.Duration
	// RetryAfter is the server supplied wait, if any was found.
	RetryAfter time.Duration
}

// Checker classifies extractor failures
type Checker struct {
	rateLimitPattern *regexp.Regexp
	caseInsensitive  bool
	penalty          time.Duration
	hint             *backoff.RetryHint
}

// NewChecker creates a new failure checker
// rateLimitPattern: regex that marks a failure as rate limiting (empty uses the default)
// caseInsensitive: whether to ignore case when matching the pattern
// penalty: backoff requested for a rate-limited failure
// maxRetryAfter: cap on server supplied Retry-After hints (0 ignores hints)
func NewChecker(rateLimitPattern string, caseInsensitive bool, penalty, maxRetryAfter time.Duration) (*Checker, error) {
	if rateLimitPattern == "" {
		rateLimitPattern = DefaultRateLimitPattern
	}
	if caseInsensitive {
		rateLimitPattern = "(?i)" + rateLimitPattern
	}

	pattern, err := regexp.Compile(rateLimitPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit pattern: %w", err)
	}

	checker := &Checker{
		rateLimitPattern: pattern,
		caseInsensitive:  caseInsensitive,
		penalty:          penalty,
	}
	if maxRetryAfter > 0 {
		checker.hint = backoff.NewRetryHint(maxRetryAfter)
	}

	return checker, nil
}

// Penalty returns the configured rate-limit penalty
func (c *Checker) Penalty() time.Duration {
	return c.penalty
}

// Classify decides whether a failure message means we are being rate
// limited. A Retry-After hint longer than the configured penalty wins.
func (c *Checker) Classify(message string) Result {
	if !c.rateLimitPattern.MatchString(message) {
		return Result{
			RateLimited: false,
			Reason:      "extraction failed",
		}
	}

	result := Result{
		RateLimited: true,
		Reason:      "rate limit pattern matched",
		Penalty:     c.penalty,
	}

	if c.hint != nil {
		if retryAfter := c.hint.Parse(message); retryAfter > 0 {
			result.RetryAfter = retryAfter
			if retryAfter > result.Penalty {
				result.Penalty = retryAfter
				result.Reason = "server requested retry delay"
			}
		}
	}

	return result
}
