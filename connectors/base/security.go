// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// URLPolicy restricts the backend URLs a handler may be configured with
type URLPolicy struct {
	// AllowPrivateIPs permits loopback and private backends (tests, in-VPC)
	AllowPrivateIPs bool
	// AllowedSchemes defaults to https and http
	AllowedSchemes []string
	// Resolve looks up host addresses; nil uses net.LookupIP
	Resolve func(host string) ([]net.IP, error)
}

// ValidateBaseURL guards against handlers being pointed at internal
// addresses. The host is resolved so a public name mapping to a private
// address is rejected too.
func ValidateBaseURL(rawURL string, policy URLPolicy) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	schemes := policy.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"https", "http"}
	}
	schemeOK := false
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		return fmt.Errorf("URL scheme %q is not allowed; permitted schemes: %v", u.Scheme, schemes)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must contain a hostname")
	}
	if policy.AllowPrivateIPs {
		return nil
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolve := policy.Resolve
		if resolve == nil {
			resolve = net.LookupIP
		}
		if ips, err = resolve(host); err != nil {
			return fmt.Errorf("failed to resolve hostname %q: %w", host, err)
		}
	}
	for _, ip := range ips {
		if isInternalIP(ip) {
			return fmt.Errorf("connection to private/internal IP %s is not allowed (hostname: %s)", ip, host)
		}
	}
	return nil
}

var internalNets = mustParseCIDRs(
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

func isInternalIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range internalNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

var (
	ansiEscape    = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	sqlIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

const maxLogLength = 500

// SanitizeLogString escapes line breaks, strips ANSI sequences and truncates
// backend-provided text before it is logged or echoed back
func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = ansiEscape.ReplaceAllString(s, "")
	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}
	return s
}

var sqlReserved = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TABLE": true, "DATABASE": true, "INDEX": true,
	"FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true, "NULL": true,
	"JOIN": true, "UNION": true, "GRANT": true, "REVOKE": true, "TRUNCATE": true,
}

// ValidateSQLIdentifier accepts plain table and column names, optionally
// schema-qualified as schema.table
func ValidateSQLIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	parts := strings.Split(identifier, ".")
	if len(parts) > 2 {
		return fmt.Errorf("invalid SQL identifier: %q", identifier)
	}
	for _, part := range parts {
		if !sqlIdentifier.MatchString(part) {
			return fmt.Errorf("invalid SQL identifier: %q", identifier)
		}
		if sqlReserved[strings.ToUpper(part)] {
			return fmt.Errorf("identifier %q is a SQL reserved word", part)
		}
	}
	return nil
}

// ValidateObjectKey rejects object keys that try to walk out of their prefix
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("null bytes not allowed in key")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("path traversal not allowed: %q", key)
		}
	}
	return nil
}
