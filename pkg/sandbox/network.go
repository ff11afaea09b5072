package sandbox

import (
	"net/url"
	"path"
	"strings"
)

// MatchURL reports whether raw is permitted by any of the network.allow patterns.
//
// A pattern containing "://" is a URL prefix (it may use '*' wildcards, matched against
// the same number of leading characters); any other pattern is a host, optionally with
// wildcards such as "*.example.com", compared against the URL's host with and without port.
// An empty pattern list permits nothing.
func MatchURL(patterns []string, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "://") {
			if matchPrefix(p, raw) {
				return true
			}
			continue
		}
		for _, host := range []string{u.Host, u.Hostname()} {
			if ok, _ := path.Match(strings.ToLower(p), strings.ToLower(host)); ok {
				return true
			}
		}
	}
	return false
}

func matchPrefix(pattern, raw string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.HasPrefix(raw, pattern)
	}
	// Try every prefix of raw; '*' does not cross '/'.
	for i := len(raw); i > 0; i-- {
		if ok, _ := path.Match(pattern, raw[:i]); ok {
			return true
		}
	}
	return false
}
