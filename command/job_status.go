// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"fmt"
	"strings"

	"github.com/edgemesh/edgemesh/api"
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/posener/complete"
)

// JobStatusCommand displays jobs, or one job in detail.
type JobStatusCommand struct {
	Meta
}

func (c *JobStatusCommand) Help() string {
	helpText := `
Usage: edgemesh job status [options] [job_id]

  Displays status information about jobs. If no job ID is given, jobs
  are listed newest first; with a job ID the job's full lifecycle
  timestamps are displayed.

General Options:
` + generalOptionsUsage() + `

Job Status Options:

  -status=<status>
    Filter the listing to one lifecycle status (QUEUED, RUNNING,
    COMPLETED, FAILED, CANCELLED).

  -type=<task_type>
    Filter the listing to one task type.

  -node=<node_id>
    Filter the listing to jobs assigned to one node.
`
	return strings.TrimSpace(helpText)
}

func (c *JobStatusCommand) Synopsis() string {
	return "Display status information about jobs"
}

func (c *JobStatusCommand) Name() string { return "job status" }

func (c *JobStatusCommand) AutocompleteFlags() complete.Flags {
	return mergeAutocompleteFlags(c.Meta.AutocompleteFlags(FlagSetClient),
		complete.Flags{
			"-status": complete.PredictSet("QUEUED", "RUNNING", "COMPLETED", "FAILED", "CANCELLED"),
			"-type":   complete.PredictAnything,
			"-node":   complete.PredictAnything,
		})
}

func (c *JobStatusCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *JobStatusCommand) Run(args []string) int {
	var status, taskType, nodeID string

	flags := c.Meta.FlagSet(c.Name(), FlagSetClient)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&status, "status", "", "")
	flags.StringVar(&taskType, "type", "", "")
	flags.StringVar(&nodeID, "node", "", "")
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

	if len(args) == 0 {
		jobs, err := client.Jobs().List(&api.JobListOptions{
			Status:   status,
			TaskType: taskType,
			NodeID:   nodeID,
		})
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error querying jobs: %s", err))
			return 1
		}
		if len(jobs) == 0 {
			c.Ui.Output("No jobs found")
			return 0
		}

		out := make([]string, len(jobs)+1)
		out[0] = "ID|Type|Status|Node|Attempts|Created"
		for i, job := range jobs {
			node := "<unassigned>"
			if job.AssignedNodeID != nil {
				node = *job.AssignedNodeID
			}
			created := job.CreatedAt
			out[i+1] = fmt.Sprintf("%s|%s|%s|%s|%d|%s",
				job.ID,
				job.Type,
				job.Status,
				node,
				job.Attempts,
				formatAge(&created))
		}
		c.Ui.Output(formatList(out))
		return 0
	}

	job, err := client.Jobs().Info(args[0])
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error querying job: %s", err))
		return 1
	}
	c.Ui.Output(formatJob(job))
	return 0
}

func formatJob(job *structs.Job) string {
	node := "<unassigned>"
	if job.AssignedNodeID != nil {
		node = *job.AssignedNodeID
	}
	payload := "<none>"
	if job.PayloadRef != nil {
		payload = *job.PayloadRef
	}

	out := []string{
		fmt.Sprintf("ID|%s", job.ID),
		fmt.Sprintf("Type|%s", job.Type),
		fmt.Sprintf("Status|%s", job.Status),
		fmt.Sprintf("Node|%s", node),
		fmt.Sprintf("Payload|%s", payload),
		fmt.Sprintf("Attempts|%d", job.Attempts),
		fmt.Sprintf("Created|%s", formatTime(&job.CreatedAt)),
		fmt.Sprintf("Started|%s", formatTime(job.StartedAt)),
		fmt.Sprintf("Completed|%s", formatTime(job.CompletedAt)),
	}
	if job.Error != nil {
		out = append(out, fmt.Sprintf("Error|%s", *job.Error))
	}
	return formatKV(out)
}
