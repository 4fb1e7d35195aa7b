package http

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// MaxURLLen is the size of the URL field in an update offer.
	MaxURLLen = 512
	// MaxHostLen bounds the host component of a download URL.
	MaxHostLen = 255

	DefaultPort = 80

	scheme = "http"
)

// SplitURL splits an absolute http URL into its host and path components by
// byte scanning. The host begins two bytes after the first '/', so the input
// must start with "scheme://". The path is "/" when the URL has none.
func SplitURL(rawURL string) (host, path string, err error) {
	if len(rawURL) > MaxURLLen {
		return "", "", fmt.Errorf("%w: %d bytes, max %d", ErrURLTooLong, len(rawURL), MaxURLLen)
	}

	slash := strings.IndexByte(rawURL, '/')
	if slash <= 0 || rawURL[slash-1] != ':' || slash+1 >= len(rawURL) || rawURL[slash+1] != '/' {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	if !strings.EqualFold(rawURL[:slash-1], scheme) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL[:slash-1])
	}

	rest := rawURL[slash+2:]

	path = "/"
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		host, path = rest[:end], rest[end:]
	} else {
		host = rest
	}

	if host == "" {
		return "", "", fmt.Errorf("%w: empty host in %q", ErrMalformedURL, rawURL)
	}

	if len(host) > MaxHostLen {
		return "", "", fmt.Errorf("%w: host is %d bytes, max %d", ErrURLTooLong, len(host), MaxHostLen)
	}

	return host, path, nil
}

// SplitHostPort separates an optional ":port" suffix from the host component.
func SplitHostPort(host string, defaultPort int) (string, int, error) {
	if !strings.Contains(host, ":") {
		return host, defaultPort, nil
	}

	name, portStr, err := net.SplitHostPort(host)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: invalid port %q", ErrMalformedURL, portStr)
	}

	if name == "" {
		return "", 0, fmt.Errorf("%w: empty host", ErrMalformedURL)
	}

	return name, port, nil
}

// NewRequest renders the GET request sent to update servers. Existing servers
// expect exactly this header set, including "Host:" without a space.
func NewRequest(path, host string) []byte {
	return []byte("GET " + path + " HTTP/1.1\r\n" +
		"Host:" + host + "\r\n" +
		"Accept: */*\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"\r\n")
}
