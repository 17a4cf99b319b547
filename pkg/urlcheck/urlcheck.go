// Package urlcheck normalizes pasted links and checks them against the
// list of supported sites.
package urlcheck

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidInput is returned for anything that should never reach the scheduler
var ErrInvalidInput = errors.New("invalid input")

// DefaultHosts are the supported sites. Subdomains match too.
var DefaultHosts = []string{
	"youtube.com",
	"youtu.be",
	"tiktok.com",
	"facebook.com",
	"fb.watch",
	"pinterest.com",
	"pin.it",
}

// Normalize trims the input, strips one pair of surrounding braces (some
// shells and drop targets add them) and collapses internal whitespace.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return strings.Join(strings.Fields(s), " ")
}

// Validator accepts URLs whose host is, or is a subdomain of, an allowed host.
type Validator struct {
	hosts []string
}

// NewValidator creates a Validator. An empty list falls back to DefaultHosts.
func NewValidator(hosts []string) *Validator {
	cleaned := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			cleaned = append(cleaned, h)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultHosts...)
	}
	return &Validator{hosts: cleaned}
}

// Hosts returns the allowed hosts
func (v *Validator) Hosts() []string {
	return append([]string(nil), v.hosts...)
}

// Validate normalizes raw and returns the URL to download. Errors wrap
// ErrInvalidInput.
func (v *Validator) Validate(raw string) (string, error) {
	s := Normalize(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty link", ErrInvalidInput)
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidInput, s)
	}

	host := strings.ToLower(u.Hostname())
	if !v.allowed(host) {
		return "", fmt.Errorf("%w: unsupported site %q", ErrInvalidInput, host)
	}

	return s, nil
}

func (v *Validator) allowed(host string) bool {
	for _, domain := range v.hosts {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
