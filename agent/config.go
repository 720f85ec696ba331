// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package agent implements the worker-node daemon: it fingerprints the
// host, registers with the coordinator, and heartbeats live metrics until
// shut down.
package agent

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-envparse"
	multierror "github.com/hashicorp/go-multierror"
)

// Config is the agent configuration, populated from the environment.
type Config struct {
	// CoordinatorURL is the coordinator base address.
	CoordinatorURL string

	// DisplayName is the human-friendly node name; defaults to the
	// hostname.
	DisplayName string

	// Port is the port this agent advertises for future task transport.
	Port int

	// HeartbeatInterval is the delay between metrics submissions.
	HeartbeatInterval time.Duration

	// LogLevel is one of TRACE, DEBUG, INFO, WARN, ERROR.
	LogLevel string

	// NodeIDFile persists the generated node id across restarts.
	NodeIDFile string

	// SharedSecret is sent on every coordinator request when set.
	SharedSecret string
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "edge-node"
	}
	return &Config{
		CoordinatorURL:    "http://localhost:8000",
		DisplayName:       hostname,
		Port:              9100,
		HeartbeatInterval: 2 * time.Second,
		LogLevel:          "INFO",
		NodeIDFile:        "state/node_id.txt",
	}
}

// LoadConfigFromEnv builds a Config from defaults overlaid with environment
// variables, optionally seeded from a .env file.
func LoadConfigFromEnv() (*Config, error) {
	loadDotEnv(".env")

	c := DefaultConfig()

	if v := os.Getenv("COORDINATOR_URL"); v != "" {
		c.CoordinatorURL = v
	}
	if v := os.Getenv("DISPLAY_NAME"); v != "" {
		c.DisplayName = v
	}
	if v := os.Getenv("AGENT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AGENT_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("HEARTBEAT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HEARTBEAT_SECONDS %q: %w", v, err)
		}
		c.HeartbeatInterval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("AGENT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("NODE_ID_FILE"); v != "" {
		c.NodeIDFile = v
	}
	if v := os.Getenv("EDGE_MESH_SHARED_SECRET"); v != "" {
		c.SharedSecret = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	var mErr multierror.Error
	if c.CoordinatorURL == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("coordinator url is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("port %d outside 0-65535", c.Port))
	}
	if c.HeartbeatInterval <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("heartbeat interval must be positive"))
	}
	if c.NodeIDFile == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("node id file is required"))
	}
	return mErr.ErrorOrNil()
}

// loadDotEnv seeds the process environment from a dotenv file, skipping
// keys that are already set. A missing file is not an error.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	vars, err := envparse.Parse(f)
	if err != nil {
		return
	}
	for k, v := range vars {
		if _, exists := os.LookupEnv(k); !exists {
			os.Setenv(k, v)
		}
	}
}
