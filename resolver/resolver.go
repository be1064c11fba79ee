// Package resolver defines the resolved-address type the balancer consumes
// and the target-string parser Dial uses to derive the call authority.
package resolver

import "strings"

// Address is a resolved backend address.
type Address struct {
	// Addr is the server address, e.g. "127.0.0.1:443".
	Addr string
	// ServerName overrides the name used for TLS certificate verification,
	// if set.
	ServerName string
	// Attributes carries resolver-specific metadata about the address.
	Attributes map[string]string
}

// Target is the parsed form of a dial target string.
type Target struct {
	Scheme    string
	Authority string
	Endpoint  string
}

// split2 returns the two results of strings.SplitN(s, sep, 2), and true, or
// ("", "", false) if sep does not occur in s.
func split2(s, sep string) (string, string, bool) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseTarget splits target into scheme, authority and endpoint. A target
// not shaped like scheme://authority/endpoint returns {Endpoint: target}
// unchanged.
func ParseTarget(target string) Target {
	scheme, rest, ok := split2(target, "://")
	if !ok {
		return Target{Endpoint: target}
	}
	authority, endpoint, ok := split2(rest, "/")
	if !ok {
		return Target{Endpoint: target}
	}
	return Target{Scheme: scheme, Authority: authority, Endpoint: endpoint}
}
