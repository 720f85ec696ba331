// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/edgemesh/edgemesh/coordinator/history"
	"github.com/edgemesh/edgemesh/coordinator/state"
	"github.com/edgemesh/edgemesh/coordinator/stream"
	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
)

// Server is the coordinator core. It owns the process-wide singletons (one
// state store, one event broker, one metrics history) and the staleness
// sweeper, and hands explicit references to the HTTP layer rather than
// exposing ambient globals.
type Server struct {
	config *Config
	logger hclog.InterceptLogger

	state   *state.StateStore
	broker  *stream.EventBroker
	history *history.MetricsHistory
	inmem   *metrics.InmemSink

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	sweeperDone  chan struct{}
}

// NewServer opens the state store, wires up the broker and history buffer,
// and starts the staleness sweeper.
func NewServer(config *Config, logger hclog.InterceptLogger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}

	store, err := state.Open(config.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	hist, err := history.New(config.HistoryMaxSamples, 0)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create metrics history: %w", err)
	}

	inmem := metrics.NewInmemSink(10*time.Second, time.Minute)
	metricsConf := metrics.DefaultConfig("edgemesh")
	metricsConf.EnableHostname = false
	metrics.NewGlobal(metricsConf, inmem)

	s := &Server{
		config:      config,
		logger:      logger,
		state:       store,
		broker:      stream.NewEventBroker(logger, config.EventBufferSize),
		history:     hist,
		inmem:       inmem,
		shutdownCh:  make(chan struct{}),
		sweeperDone: make(chan struct{}),
	}

	go s.runStalenessSweeper()

	s.logger.Info("coordinator server started",
		"stale_window", config.NodeStale,
		"sweep_interval", config.SweepInterval,
		"heartbeat_ttl", config.HeartbeatTTL,
		"auth", config.SharedSecret != "")
	return s, nil
}

// State exposes the store to the HTTP layer.
func (s *Server) State() *state.StateStore { return s.state }

// Broker exposes the event broker to the HTTP layer.
func (s *Server) Broker() *stream.EventBroker { return s.broker }

// History exposes the metrics history buffer to the HTTP layer.
func (s *Server) History() *history.MetricsHistory { return s.history }

// Config returns the server configuration.
func (s *Server) Config() *Config { return s.config }

// InmemSink exposes the telemetry sink backing /v1/metrics.
func (s *Server) InmemSink() *metrics.InmemSink { return s.inmem }

// Shutdown stops the sweeper, closes the broker, and releases the store.
// Safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("coordinator server shutting down")
		close(s.shutdownCh)
		<-s.sweeperDone
		s.broker.Close()
		err = s.state.Close()
	})
	return err
}

// runStalenessSweeper demotes silent nodes on a fixed interval. Sweep
// failures are logged and swallowed; a broken sweep must not take the
// process down. Demotions are deliberately not published on the broker:
// clients infer absence from missing heartbeat events.
func (s *Server) runStalenessSweeper() {
	defer close(s.sweeperDone)

	logger := s.logger.Named("staleness")
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			start := time.Now()
			changed, err := s.state.MarkOfflineIfStale(s.config.NodeStale)
			if err != nil {
				logger.Error("stale sweep failed", "error", err)
				continue
			}
			metrics.MeasureSince([]string{"staleness", "sweep"}, start)
			if len(changed) > 0 {
				ids := make([]string, len(changed))
				for i, node := range changed {
					ids[i] = node.NodeID
				}
				metrics.IncrCounter([]string{"staleness", "demoted"}, float32(len(changed)))
				logger.Info("demoted stale nodes", "nodes", ids)
			}
		}
	}
}
