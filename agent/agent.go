// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgemesh/edgemesh/agent/fingerprint"
	"github.com/edgemesh/edgemesh/agent/stats"
	"github.com/edgemesh/edgemesh/api"
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/uuid"
	"github.com/hashicorp/go-hclog"
)

const (
	// backoffBase and backoffLimit bound the reconnect schedule: start at
	// one second, double on every consecutive failure, cap at thirty.
	backoffBase  = 1 * time.Second
	backoffLimit = 30 * time.Second
)

// Agent is the worker-node daemon.
type Agent struct {
	config *Config
	logger hclog.Logger
	client *api.Client

	nodeID    string
	caps      *structs.RegisterCapabilities
	collector *stats.Collector
}

// NewAgent fingerprints the host and prepares the coordinator client. The
// node id is loaded from, or created in, the configured id file so identity
// survives restarts.
func NewAgent(config *Config, logger hclog.Logger) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	client, err := api.NewClient(&api.Config{
		Address: config.CoordinatorURL,
		Secret:  config.SharedSecret,
	})
	if err != nil {
		return nil, err
	}

	nodeID, err := loadOrCreateNodeID(config.NodeIDFile)
	if err != nil {
		return nil, err
	}

	caps := fingerprint.Fingerprint(logger)

	a := &Agent{
		config:    config,
		logger:    logger,
		client:    client,
		nodeID:    nodeID,
		caps:      caps,
		collector: stats.NewCollector(logger, caps.GPUName != nil),
	}

	logger.Info("agent initialized",
		"node_id", nodeID,
		"display_name", config.DisplayName,
		"coordinator", config.CoordinatorURL,
		"gpu", caps.GPUName != nil)
	return a, nil
}

// NodeID returns the persistent node identity.
func (a *Agent) NodeID() string { return a.nodeID }

// Run drives the register-then-heartbeat loop until the context is
// cancelled. Any coordinator failure resets the agent to unregistered and
// backs off exponentially; the next attempt re-registers from scratch on
// the assumption the coordinator lost state.
func (a *Agent) Run(ctx context.Context) error {
	registered := false
	backoff := backoffBase

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var err error
		if !registered {
			err = a.register()
			if err == nil {
				registered = true
				backoff = backoffBase
			}
		} else {
			err = a.heartbeat()
		}

		var wait time.Duration
		switch {
		case err != nil:
			registered = false
			a.logger.Warn("coordinator request failed, backing off",
				"error", err, "backoff", backoff)
			wait = backoff
			backoff *= 2
			if backoff > backoffLimit {
				backoff = backoffLimit
			}
		default:
			wait = a.config.HeartbeatInterval
		}

		select {
		case <-ctx.Done():
			a.logger.Info("agent shutting down")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// register submits identity and fingerprinted capabilities.
func (a *Agent) register() error {
	req := &structs.AgentRegisterRequest{
		NodeID:       a.nodeID,
		DisplayName:  a.config.DisplayName,
		IP:           detectLocalIP(),
		Port:         a.config.Port,
		Capabilities: a.caps,
	}
	node, err := a.client.Agent().Register(req)
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	a.logger.Info("registered with coordinator", "node_id", node.NodeID, "status", node.Status)
	return nil
}

// heartbeat submits a live metrics sample.
func (a *Agent) heartbeat() error {
	req := &structs.AgentHeartbeatRequest{
		NodeID:  a.nodeID,
		Metrics: a.collector.Sample(),
	}
	event, err := a.client.Agent().Heartbeat(req)
	if err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	a.logger.Debug("heartbeat accepted", "status", event.Status)
	return nil
}

// loadOrCreateNodeID reads the persisted node id, generating and storing a
// fresh one when the file is missing or empty.
func loadOrCreateNodeID(path string) (string, error) {
	if raw, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}

	id := uuid.Short("node")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create node id directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to persist node id: %w", err)
	}
	return id, nil
}

// detectLocalIP finds the host's outbound address by dialing a UDP target;
// no packets are sent. Falls back to loopback when the host is offline.
func detectLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
