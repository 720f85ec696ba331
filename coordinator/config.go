// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package coordinator implements the EdgeMesh control plane daemon: the
// node registry, heartbeat ingestion, staleness sweeping, job lifecycle,
// and the HTTP surface that exposes them.
package coordinator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-envparse"
	multierror "github.com/hashicorp/go-multierror"
)

// Config is the coordinator daemon configuration, populated from the
// environment (optionally seeded from a .env file).
type Config struct {
	// Host and Port form the HTTP bind address.
	Host string
	Port int

	// LogLevel is one of TRACE, DEBUG, INFO, WARN, ERROR.
	LogLevel string

	// HeartbeatTTL is the interval agents are told to heartbeat within.
	// It is advertised, not enforced; enforcement is the stale sweep.
	HeartbeatTTL time.Duration

	// NodeStale is how long a node may stay silent before the sweep
	// demotes it to OFFLINE.
	NodeStale time.Duration

	// SweepInterval is how often the staleness monitor runs.
	SweepInterval time.Duration

	// CORSOrigins is the allowed origin list for the web UI.
	CORSOrigins []string

	// DBPath is the bbolt file backing the state store. Empty runs the
	// store in memory only.
	DBPath string

	// SharedSecret gates the agent ingest endpoints when non-empty.
	SharedSecret string

	// HistoryMaxSamples bounds the per-node metrics history ring.
	HistoryMaxSamples int

	// EventBufferSize bounds each SSE subscriber's queue.
	EventBufferSize int
}

// DefaultConfig returns the coordinator defaults: bind everywhere on 8000,
// 15 second staleness with a 5 second sweep, local Vite dev origin.
func DefaultConfig() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8000,
		LogLevel:          "INFO",
		HeartbeatTTL:      60 * time.Second,
		NodeStale:         15 * time.Second,
		SweepInterval:     5 * time.Second,
		CORSOrigins:       []string{"http://localhost:5173"},
		DBPath:            "coordinator.db",
		HistoryMaxSamples: 256,
		EventBufferSize:   256,
	}
}

// LoadConfigFromEnv builds a Config from defaults overlaid with environment
// variables. A .env file in the working directory seeds variables that are
// not already set; the real environment always wins.
func LoadConfigFromEnv() (*Config, error) {
	loadDotEnv(".env")

	c := DefaultConfig()

	if v := os.Getenv("COORDINATOR_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("COORDINATOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDINATOR_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("COORDINATOR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COORDINATOR_HEARTBEAT_TTL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COORDINATOR_HEARTBEAT_TTL_SECONDS %q: %w", v, err)
		}
		c.HeartbeatTTL = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("NODE_STALE_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid NODE_STALE_SECONDS %q: %w", v, err)
		}
		c.NodeStale = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("COORDINATOR_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		c.CORSOrigins = origins
	}
	if v := os.Getenv("COORDINATOR_DB_URL"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("EDGE_MESH_SHARED_SECRET"); v != "" {
		c.SharedSecret = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var mErr multierror.Error
	if c.Port < 0 || c.Port > 65535 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("port %d outside 0-65535", c.Port))
	}
	if c.NodeStale <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("node stale window must be positive"))
	}
	if c.SweepInterval <= 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("sweep interval must be positive"))
	}
	return mErr.ErrorOrNil()
}

// BindAddr returns the host:port the HTTP server listens on.
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadDotEnv seeds the process environment from a dotenv file, skipping keys
// that are already set. A missing file is not an error.
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
