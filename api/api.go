// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package api is the Go client for the EdgeMesh coordinator HTTP API. It is
// used by the worker agent and the operator CLI.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

// secretHeader carries the shared secret on state-altering requests.
const secretHeader = "X-EdgeMesh-Secret"

// Config is used to configure the creation of a client.
type Config struct {
	// Address is the coordinator base URL, e.g. http://localhost:8000.
	Address string

	// Secret is the shared secret sent on every request; may be empty
	// when the coordinator runs unauthenticated.
	Secret string

	// HTTPClient is the client to use. Default will be used if not
	// provided.
	HTTPClient *http.Client
}

// DefaultConfig returns a default configuration for the client, checking
// COORDINATOR_URL and EDGE_MESH_SHARED_SECRET.
func DefaultConfig() *Config {
	config := &Config{
		Address:    "http://localhost:8000",
		HTTPClient: defaultHTTPClient(),
	}
	if addr := os.Getenv("COORDINATOR_URL"); addr != "" {
		config.Address = addr
	}
	if secret := os.Getenv("EDGE_MESH_SHARED_SECRET"); secret != "" {
		config.Secret = secret
	}
	return config
}

func defaultHTTPClient() *http.Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 10 * time.Second
	return httpClient
}

// Client provides a client to the EdgeMesh API.
type Client struct {
	config Config
}

// NewClient returns a new client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	defConfig := DefaultConfig()
	conf := *config
	if conf.Address == "" {
		conf.Address = defConfig.Address
	}
	if conf.HTTPClient == nil {
		conf.HTTPClient = defaultHTTPClient()
	}
	if _, err := url.Parse(conf.Address); err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", conf.Address, err)
	}

	return &Client{config: conf}, nil
}

// Address returns the configured coordinator address.
func (c *Client) Address() string {
	return c.config.Address
}

// UnexpectedResponseError is returned for any non-2xx coordinator reply,
// carrying the status code and response body for the caller to classify.
type UnexpectedResponseError struct {
	StatusCode int
	Body       string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response code %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an UnexpectedResponseError with the given
// status code.
func IsStatus(err error, code int) bool {
	unexpected, ok := err.(*UnexpectedResponseError)
	return ok && unexpected.StatusCode == code
}

// doRequest performs a JSON round trip. A nil out discards the response
// body; a nil in sends no body.
func (c *Client) doRequest(method, path string, query url.Values, in, out interface{}) error {
	u := strings.TrimSuffix(c.config.Address, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Secret != "" {
		req.Header.Set(secretHeader, c.config.Secret)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UnexpectedResponseError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) get(path string, query url.Values, out interface{}) error {
	return c.doRequest(http.MethodGet, path, query, nil, out)
}

func (c *Client) post(path string, in, out interface{}) error {
	return c.doRequest(http.MethodPost, path, nil, in, out)
}

func (c *Client) put(path string, in, out interface{}) error {
	return c.doRequest(http.MethodPut, path, nil, in, out)
}

// Health checks coordinator liveness.
func (c *Client) Health() error {
	var out map[string]string
	if err := c.get("/health", nil, &out); err != nil {
		return err
	}
	if out["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", out["status"])
	}
	return nil
}
