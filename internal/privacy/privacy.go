// Package privacy removes credentials and host details from text that
// leaves the process: log lines about brokers and telemetry events.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// urlPattern finds URLs of the schemes the tester talks to.
var urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|tls|mqtts?|wss?)://\S+`)

// ScrubMessage replaces every URL in message with an anonymized token.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL converts a URL to a stable token. Equal scheme, host kind,
// port and path shape give equal tokens, so repeated errors still group.
func AnonymizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var parts []string
	if u.Scheme != "" {
		parts = append(parts, u.Scheme)
	}
	if host := u.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := u.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if u.Path != "" && u.Path != "/" {
		parts = append(parts, anonymizePath(u.Path))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// SanitizeURL strips credentials, path and query from a URL and keeps
// scheme, host and port for display. Unparseable input is anonymized.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return AnonymizeURL(rawURL)
	}
	return u.Scheme + "://" + u.Host
}

func categorizeHost(host string) string {
	switch {
	case host == "localhost":
		return "localhost"
	case strings.HasSuffix(host, ".local"):
		return "mdns-host"
	}
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return "hostname"
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate():
		return "private-ip"
	case ip.To4() == nil:
		return "ipv6"
	default:
		return "public-ip"
	}
}

// anonymizePath keeps the depth of a path and replaces each segment with
// a placeholder.
func anonymizePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := range segments {
		segments[i] = "seg"
	}
	return "/" + strings.Join(segments, "/")
}
