// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"fmt"
	"strings"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/scheduler"
	"github.com/posener/complete"
)

// NodeStatusCommand displays the fleet, or one node in detail.
type NodeStatusCommand struct {
	Meta
}

func (c *NodeStatusCommand) Help() string {
	helpText := `
Usage: edgemesh node status [options] [node_id]

  Displays status information about registered nodes. If no node ID is
  given, a short listing of all nodes is shown; with a node ID the
  node's capabilities, live metrics, scheduling policy and effective
  capacity are displayed.

General Options:
` + generalOptionsUsage() + `

Node Status Options:

  -history
    Include recent heartbeat metrics samples in the detail view.
`
	return strings.TrimSpace(helpText)
}

func (c *NodeStatusCommand) Synopsis() string {
	return "Display status information about nodes"
}

func (c *NodeStatusCommand) Name() string { return "node status" }

func (c *NodeStatusCommand) AutocompleteFlags() complete.Flags {
	return mergeAutocompleteFlags(c.Meta.AutocompleteFlags(FlagSetClient),
		complete.Flags{
			"-history": complete.PredictNothing,
		})
}

func (c *NodeStatusCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *NodeStatusCommand) Run(args []string) int {
	var history bool

	flags := c.Meta.FlagSet(c.Name(), FlagSetClient)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.BoolVar(&history, "history", false, "")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	args = flags.Args()
	if len(args) > 1 {
		c.Ui.Error("This command takes either one or no arguments")
		c.Ui.Error(commandErrorText(c))
		return 1
	}

	client, err := c.Meta.Client()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error initializing client: %s", err))
		return 1
	}

	// Use list mode if no node ID was provided
	if len(args) == 0 {
		nodes, err := client.Nodes().List()
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error querying nodes: %s", err))
			return 1
		}
		if len(nodes) == 0 {
			c.Ui.Output("No nodes registered")
			return 0
		}

		out := make([]string, len(nodes)+1)
		out[0] = "ID|Name|Status|Address|CPU %|RAM %|GPU|Jobs|Last Seen"
		for i, node := range nodes {
			cpu, ram, jobs := "-", "-", "-"
			if node.Metrics != nil {
				cpu = fmtFloat(node.Metrics.CPUPercent)
				ram = fmtFloat(node.Metrics.RAMPercent)
				jobs = fmt.Sprintf("%d", node.Metrics.RunningJobs)
			}
			gpu := "no"
			if node.HasGPU() {
				gpu = "yes"
			}
			out[i+1] = fmt.Sprintf("%s|%s|%s|%s:%d|%s|%s|%s|%s|%s",
				node.NodeID,
				node.DisplayName,
				node.Status,
				node.IP, node.Port,
				cpu, ram, gpu, jobs,
				formatAge(node.LastSeen))
		}
		c.Ui.Output(formatList(out))
		return 0
	}

	historyLimit := 0
	if history {
		historyLimit = 10
	}
	detail, err := client.Nodes().Info(args[0], history, historyLimit)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error querying node: %s", err))
		return 1
	}
	c.Ui.Output(c.formatNode(detail))
	return 0
}

func (c *NodeStatusCommand) formatNode(detail *structs.NodeDetail) string {
	node := detail.Node

	basic := []string{
		fmt.Sprintf("ID|%s", node.NodeID),
		fmt.Sprintf("Name|%s", node.DisplayName),
		fmt.Sprintf("Status|%s", node.Status),
		fmt.Sprintf("Address|%s:%d", node.IP, node.Port),
		fmt.Sprintf("Last Seen|%s", formatAge(node.LastSeen)),
		fmt.Sprintf("Registered|%s", formatTime(&node.CreatedAt)),
	}
	out := formatKV(basic)

	if caps := node.Capabilities; caps != nil {
		gpu := "<none>"
		if caps.GPUName != nil {
			gpu = *caps.GPUName
			if caps.VRAMTotalGB != nil {
				gpu = fmt.Sprintf("%s (%s GB)", gpu, fmtFloat(*caps.VRAMTotalGB))
			}
		}
		taskTypes := make([]string, len(caps.TaskTypes))
		for i, t := range caps.TaskTypes {
			taskTypes[i] = string(t)
		}
		out += "\n\nCapabilities\n" + formatKV([]string{
			fmt.Sprintf("CPU|%d cores, %d threads", caps.CPUCores, caps.CPUThreads),
			fmt.Sprintf("RAM|%s GB", fmtFloat(caps.RAMTotalGB)),
			fmt.Sprintf("GPU|%s", gpu),
			fmt.Sprintf("OS|%s/%s", caps.OS, caps.Arch),
			fmt.Sprintf("Task Types|%s", strings.Join(taskTypes, ", ")),
			fmt.Sprintf("Labels|%s", strings.Join(caps.Labels, ", ")),
		})
	}

	if m := node.Metrics; m != nil {
		metricsOut := []string{
			fmt.Sprintf("CPU|%s%%", fmtFloat(m.CPUPercent)),
			fmt.Sprintf("RAM|%s%% (%s GB used)", fmtFloat(m.RAMPercent), fmtFloat(m.RAMUsedGB)),
		}
		if m.GPUPercent != nil {
			metricsOut = append(metricsOut, fmt.Sprintf("GPU|%s%%", fmtFloat(*m.GPUPercent)))
		}
		if m.VRAMUsedGB != nil {
			metricsOut = append(metricsOut, fmt.Sprintf("VRAM Used|%s GB", fmtFloat(*m.VRAMUsedGB)))
		}
		metricsOut = append(metricsOut, fmt.Sprintf("Running Jobs|%d", m.RunningJobs))
		out += "\n\nLatest Metrics\n" + formatKV(metricsOut)
	}

	if p := node.Policy; p != nil {
		gpuCap := "<unset>"
		if p.GPUCapPercent != nil {
			gpuCap = fmtFloat(*p.GPUCapPercent) + "%"
		}
		allow := make([]string, len(p.TaskAllowlist))
		for i, t := range p.TaskAllowlist {
			allow[i] = string(t)
		}
		out += "\n\nPolicy\n" + formatKV([]string{
			fmt.Sprintf("Enabled|%v", p.Enabled),
			fmt.Sprintf("CPU Cap|%s%%", fmtFloat(p.CPUCapPercent)),
			fmt.Sprintf("RAM Cap|%s%%", fmtFloat(p.RAMCapPercent)),
			fmt.Sprintf("GPU Cap|%s", gpuCap),
			fmt.Sprintf("Task Allowlist|%s", strings.Join(allow, ", ")),
			fmt.Sprintf("Role Preference|%s", p.RolePreference),
		})
	}

	if node.Capabilities != nil {
		eff := scheduler.ComputeEffectiveCapacity(node)
		vram := "<none>"
		if eff.VRAMGB != nil {
			vram = fmtFloat(*eff.VRAMGB) + " GB"
		}
		out += "\n\nEffective Capacity\n" + formatKV([]string{
			fmt.Sprintf("CPU Threads|%s", fmtFloat(eff.CPUThreads)),
			fmt.Sprintf("RAM|%s GB", fmtFloat(eff.RAMGB)),
			fmt.Sprintf("VRAM|%s", vram),
		})
	}

	if len(detail.MetricsHistory) > 0 {
		rows := make([]string, len(detail.MetricsHistory)+1)
		rows[0] = "Time|CPU %|RAM %|GPU %|Jobs"
		for i, m := range detail.MetricsHistory {
			gpu := "-"
			if m.GPUPercent != nil {
				gpu = fmtFloat(*m.GPUPercent)
			}
			ts := m.HeartbeatTS
			rows[i+1] = fmt.Sprintf("%s|%s|%s|%s|%d",
				formatTime(&ts),
				fmtFloat(m.CPUPercent),
				fmtFloat(m.RAMPercent),
				gpu,
				m.RunningJobs)
		}
		out += "\n\nRecent Heartbeats\n" + formatList(rows)
	}

	return out
}
