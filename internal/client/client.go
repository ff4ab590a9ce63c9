package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/linaldb/linal/pkg/engine"
)

// Config represents client configuration.
type Config struct {
	ServerURL string
	Database  string
	Timeout   time.Duration
}

// Client talks to a LINAL server over its HTTP query API. It tracks the
// database the server-side session ends on so USE survives across calls.
type Client struct {
	config    *Config
	params    *ConnectionParams
	http      *http.Client
	sessionID string
	database  string
}

// queryRequest mirrors the server's request body.
type queryRequest struct {
	Query    string `json:"query"`
	Database string `json:"database,omitempty"`
}

// queryResponse mirrors the server's response body.
type queryResponse struct {
	Outputs  []*engine.Output `json:"outputs"`
	Database string           `json:"database"`
}

// New creates a new client.
func New(cfg *Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	params, err := ParseURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	database := cfg.Database
	if database == "" {
		database = params.Database
	}
	return &Client{
		config:    cfg,
		params:    params,
		http:      &http.Client{Timeout: cfg.Timeout},
		sessionID: uuid.New().String(),
		database:  database,
	}, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Execute runs a script on the server and returns its outputs.
func (c *Client) Execute(ctx context.Context, query string) ([]*engine.Output, error) {
	body, err := json.Marshal(queryRequest{Query: query, Database: c.database})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.params.BaseURL()+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Linal-Session", c.sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if qr.Database != "" {
		c.database = qr.Database
	}
	return qr.Outputs, nil
}

// Databases lists the server's databases.
func (c *Client) Databases(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.params.BaseURL()+"/api/v1/databases", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()
	var body struct {
		Databases []string `json:"databases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return body.Databases, nil
}

// UseDatabase switches the client's target database.
func (c *Client) UseDatabase(name string) { c.database = name }

// Database returns the client's current database.
func (c *Client) Database() string { return c.database }

// Config returns the client configuration.
func (c *Client) Config() *Config { return c.config }
