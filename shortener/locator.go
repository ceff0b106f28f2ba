package shortener

import (
	"net/url"
	"strings"
)

// NormalizeLocator checks that raw is an absolute http(s) URL with a host
// and returns its canonical form: scheme and host lowercased, fragment
// dropped. Two submissions of the same resource normalize to the same
// locator, which is what dedup keys on.
func NormalizeLocator(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidLocator
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidLocator
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidLocator
	}
	if u.Host == "" || u.Opaque != "" {
		return "", ErrInvalidLocator
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
