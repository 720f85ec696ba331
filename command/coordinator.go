// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/edgemesh/edgemesh/coordinator"
	"github.com/edgemesh/edgemesh/version"
	"github.com/hashicorp/go-hclog"
	"github.com/posener/complete"
)

// CoordinatorCommand runs the control-plane daemon in the foreground until
// interrupted.
type CoordinatorCommand struct {
	Meta
}

func (c *CoordinatorCommand) Help() string {
	helpText := `
Usage: edgemesh coordinator [options]

  Starts the EdgeMesh coordinator: the HTTP API, heartbeat ingestion,
  staleness sweeper, scheduler and live node event stream. The process
  runs in the foreground until it receives an interrupt.

  Configuration is read from the environment, optionally seeded from a
  .env file in the working directory. See COORDINATOR_HOST,
  COORDINATOR_PORT, COORDINATOR_LOG_LEVEL, COORDINATOR_DB_URL,
  COORDINATOR_HEARTBEAT_TTL_SECONDS, NODE_STALE_SECONDS,
  COORDINATOR_CORS_ORIGINS and EDGE_MESH_SHARED_SECRET.
`
	return strings.TrimSpace(helpText)
}

func (c *CoordinatorCommand) Synopsis() string {
	return "Runs the EdgeMesh coordinator"
}

func (c *CoordinatorCommand) Name() string { return "coordinator" }

func (c *CoordinatorCommand) AutocompleteFlags() complete.Flags {
	return nil
}

func (c *CoordinatorCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *CoordinatorCommand) Run(args []string) int {
	flags := c.Meta.FlagSet(c.Name(), FlagSetNone)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if len(flags.Args()) > 0 {
		c.Ui.Error("This command takes no arguments")
		c.Ui.Error(commandErrorText(c))
		return 1
	}

	config, err := coordinator.LoadConfigFromEnv()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to load configuration: %s", err))
		return 1
	}

	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:  "edgemesh",
		Level: hclog.LevelFromString(config.LogLevel),
	})

	logger.Info("starting coordinator",
		"version", version.GetVersion().FullVersionNumber(true),
		"bind", config.BindAddr(),
		"heartbeat_ttl", config.HeartbeatTTL,
		"node_stale", config.NodeStale)

	server, err := coordinator.NewServer(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start coordinator: %s", err))
		return 1
	}
	defer server.Shutdown()

	httpServer, err := coordinator.NewHTTPServer(server)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start HTTP server: %s", err))
		return 1
	}
	defer httpServer.Shutdown()

	c.Ui.Output(fmt.Sprintf("EdgeMesh coordinator running on %s", config.BindAddr()))

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	sig := <-signalCh
	logger.Info("caught signal, shutting down", "signal", sig)
	return 0
}
