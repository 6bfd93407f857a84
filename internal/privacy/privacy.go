// Package privacy scrubs credentials and tokens out of URLs and messages
// before they reach logs, error reports or API responses.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// urlPattern matches URLs of any scheme; shoutrrr service URLs such as
// telegram://token@telegram carry secrets in the user part.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

// ScrubMessage replaces every URL in message with its anonymized form.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL converts a URL to a stable hash that keeps the scheme
// visible, so reports can still tell services apart.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{parsed.Scheme, categorizeHost(parsed.Hostname())}
	if parsed.Port() != "" {
		parts = append(parts, "port-"+parsed.Port())
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, ":") + parsed.Path))
	return fmt.Sprintf("%s://url-%x", parsed.Scheme, hash[:8])
}

// RedactURL keeps scheme, host and port for display and drops
// credentials, path and query.
func RedactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return "[redacted]"
	}
	if parsed.User != nil {
		return parsed.Scheme + "://***@" + parsed.Host
	}
	return parsed.Scheme + "://" + parsed.Host
}

func categorizeHost(host string) string {
	switch {
	case host == "":
		return "no-host"
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case strings.Count(host, ".") >= 1:
		return "domain"
	default:
		return "hostname"
	}
}

func isPrivateIP(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsPrivate()
}
