// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/edgemesh/edgemesh/agent"
	"github.com/edgemesh/edgemesh/version"
	"github.com/hashicorp/go-hclog"
	"github.com/posener/complete"
)

// AgentCommand runs the worker-node daemon in the foreground until
// interrupted.
type AgentCommand struct {
	Meta
}

func (c *AgentCommand) Help() string {
	helpText := `
Usage: edgemesh agent [options]

  Starts an EdgeMesh worker agent. The agent fingerprints the host,
  registers with the coordinator and then heartbeats live resource
  metrics until interrupted. If the coordinator becomes unreachable the
  agent backs off and re-registers from scratch once it returns.

  Configuration is read from the environment, optionally seeded from a
  .env file in the working directory. See COORDINATOR_URL, DISPLAY_NAME,
  AGENT_PORT, HEARTBEAT_SECONDS, AGENT_LOG_LEVEL, NODE_ID_FILE and
  EDGE_MESH_SHARED_SECRET.
`
	return strings.TrimSpace(helpText)
}

func (c *AgentCommand) Synopsis() string {
	return "Runs an EdgeMesh worker agent"
}

func (c *AgentCommand) Name() string { return "agent" }

func (c *AgentCommand) AutocompleteFlags() complete.Flags {
	return nil
}

func (c *AgentCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *AgentCommand) Run(args []string) int {
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

	config, err := agent.LoadConfigFromEnv()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to load configuration: %s", err))
		return 1
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "agent",
		Level: hclog.LevelFromString(config.LogLevel),
	})

	logger.Info("starting agent",
		"version", version.GetVersion().FullVersionNumber(true),
		"coordinator", config.CoordinatorURL)

	a, err := agent.NewAgent(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start agent: %s", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.Ui.Output(fmt.Sprintf("EdgeMesh agent %s heartbeating to %s",
		a.NodeID(), config.CoordinatorURL))

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		c.Ui.Error(fmt.Sprintf("Agent exited with error: %s", err))
		return 1
	}
	return 0
}
