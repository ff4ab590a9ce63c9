package client

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionParams holds parsed connection parameters.
type ConnectionParams struct {
	Host     string
	Port     int
	Database string
}

// ParseURL parses a LINAL connection URL.
// Supported formats:
//   - linal://host[:port][/database]
//   - host:port (legacy format)
func ParseURL(serverURL string) (*ConnectionParams, error) {
	if !strings.Contains(serverURL, "://") {
		host, port, err := parseHostPort(serverURL)
		if err != nil {
			return nil, fmt.Errorf("invalid host:port format: %w", err)
		}
		return &ConnectionParams{Host: host, Port: port}, nil
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "linal" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (expected 'linal')", u.Scheme)
	}

	params := &ConnectionParams{
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Port:     8080,
	}
	if u.Port() != "" {
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %w", err)
		}
		params.Port = port
	}
	if params.Host == "" {
		return nil, fmt.Errorf("host is required in connection URL")
	}
	return params, nil
}

// BaseURL returns the HTTP base URL for API calls.
func (p *ConnectionParams) BaseURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
}

// String returns the canonical linal:// form.
func (p *ConnectionParams) String() string {
	s := "linal://" + p.Host
	if p.Port != 8080 {
		s += fmt.Sprintf(":%d", p.Port)
	}
	if p.Database != "" {
		s += "/" + p.Database
	}
	return s
}

// parseHostPort parses a legacy host:port string.
func parseHostPort(hostPort string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port number: %w", err)
	}
	if port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("port number out of range: %d", port)
	}
	return host, port, nil
}
