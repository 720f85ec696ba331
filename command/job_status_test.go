// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"testing"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/pointer"
	"github.com/hashicorp/cli"
	"github.com/shoenig/test/must"
)

func TestJobStatusCommand_Implements(t *testing.T) {
	ci.Parallel(t)
	var _ cli.Command = &JobStatusCommand{}
}

func TestJobStatusCommand_Fails(t *testing.T) {
	ci.Parallel(t)
	ui := cli.NewMockUi()
	cmd := &JobStatusCommand{Meta: Meta{Ui: ui}}

	code := cmd.Run([]string{"some", "bad", "args"})
	must.Eq(t, 1, code)
	must.StrContains(t, ui.ErrorWriter.String(), "takes either one or no arguments")
	ui.ErrorWriter.Reset()

	code = cmd.Run([]string{"-address=http://127.0.0.1:0"})
	must.Eq(t, 1, code)
	must.StrContains(t, ui.ErrorWriter.String(), "Error querying jobs")
}

func TestJobStatusCommand_List(t *testing.T) {
	ci.Parallel(t)
	addr, client := testCoordinator(t)

	ui := cli.NewMockUi()
	cmd := &JobStatusCommand{Meta: Meta{Ui: ui}}

	code := cmd.Run([]string{"-address=" + addr})
	must.Eq(t, 0, code)
	must.StrContains(t, ui.OutputWriter.String(), "No jobs found")
	ui.OutputWriter.Reset()

	seedNode(t, client, "node-1")

	embed, err := client.Jobs().Create(&structs.JobCreateRequest{TaskType: "embed"})
	must.NoError(t, err)
	index, err := client.Jobs().Create(&structs.JobCreateRequest{TaskType: "INDEX"})
	must.NoError(t, err)

	code = cmd.Run([]string{"-address=" + addr})
	must.Eq(t, 0, code)
	out := ui.OutputWriter.String()
	must.StrContains(t, out, embed.ID)
	must.StrContains(t, out, index.ID)
	must.StrContains(t, out, "EMBEDDINGS")
	ui.OutputWriter.Reset()

	// Filter flags narrow the listing server-side.
	code = cmd.Run([]string{"-address=" + addr, "-type=embed"})
	must.Eq(t, 0, code)
	out = ui.OutputWriter.String()
	must.StrContains(t, out, embed.ID)
	must.StrNotContains(t, out, index.ID)
}

func TestJobStatusCommand_Detail(t *testing.T) {
	ci.Parallel(t)
	addr, client := testCoordinator(t)
	seedNode(t, client, "node-1")

	job, err := client.Jobs().Create(&structs.JobCreateRequest{TaskType: "embed"})
	must.NoError(t, err)
	_, err = client.Jobs().SetStatus(job.ID, "RUNNING", nil)
	must.NoError(t, err)
	_, err = client.Jobs().SetStatus(job.ID, "FAILED", pointer.Of("weights download timed out"))
	must.NoError(t, err)

	ui := cli.NewMockUi()
	cmd := &JobStatusCommand{Meta: Meta{Ui: ui}}

	code := cmd.Run([]string{"-address=" + addr, job.ID})
	must.Eq(t, 0, code)

	out := ui.OutputWriter.String()
	must.StrContains(t, out, job.ID)
	must.StrContains(t, out, "FAILED")
	must.StrContains(t, out, "node-1")
	must.StrContains(t, out, "weights download timed out")
	ui.OutputWriter.Reset()

	code = cmd.Run([]string{"-address=" + addr, "job-nope"})
	must.Eq(t, 1, code)
	must.StrContains(t, ui.ErrorWriter.String(), "Error querying job")
}
