package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the compiled allow-list from Config.AllowedOrigins. An
// entry of "*" admits every well-formed origin.
type originPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
}

func newOriginPolicy(origins []string) originPolicy {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
		case trimmed == "*":
			policy.allowAll = true
		default:
			canonical, ok := canonicalOrigin(trimmed)
			if !ok {
				log.Printf("Ignoring invalid origin in configuration: %q", origin)
				continue
			}
			policy.allowed[canonical] = struct{}{}
		}
	}
	return policy
}

// canonicalOrigin lowercases scheme and host and drops any path.
func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	canonical, ok := canonicalOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[canonical]
	return ok
}

// checkOrigin is the upgrader's CheckOrigin hook.
func (p originPolicy) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.allows(origin) {
		return true
	}
	log.Printf("Blocked WebSocket connection from disallowed origin: %q", origin)
	return false
}
