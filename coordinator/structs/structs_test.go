// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/edgemesh/edgemesh/helper/pointer"
	"github.com/shoenig/test/must"
)

func TestParseTaskType(t *testing.T) {
	ci.Parallel(t)

	cases := []struct {
		in   string
		want TaskType
	}{
		{"INFERENCE", TaskTypeInference},
		{"INFER", TaskTypeInference},
		{"infer", TaskTypeInference},
		{" Inference ", TaskTypeInference},
		{"EMBED", TaskTypeEmbeddings},
		{"embedding", TaskTypeEmbeddings},
		{"EMBEDDINGS", TaskTypeEmbeddings},
		{"INDEX", TaskTypeIndex},
		{"tokenize", TaskTypeTokenize},
		{"PREPROCESS", TaskTypePreprocess},
		{"preprocessing", TaskTypePreprocess},
	}
	for _, tc := range cases {
		got, err := ParseTaskType(tc.in)
		must.NoError(t, err)
		must.Eq(t, tc.want, got)
	}

	for _, bad := range []string{"", "TRAINING", "gpu", "inferencing"} {
		_, err := ParseTaskType(bad)
		must.Error(t, err)
		must.True(t, IsErrValidation(err))
	}
}

func TestTaskTypesFromLabels(t *testing.T) {
	ci.Parallel(t)

	// Order follows declaration order, duplicates collapse, non-aliases
	// are ignored.
	got := TaskTypesFromLabels([]string{"gpu", "embed", "INFER", "embedding", "linux"})
	must.Eq(t, []TaskType{TaskTypeEmbeddings, TaskTypeInference}, got)

	must.Nil(t, TaskTypesFromLabels(nil))
	must.Nil(t, TaskTypesFromLabels([]string{"gpu", "cpu"}))
}

func TestTaskType_Affinity(t *testing.T) {
	ci.Parallel(t)

	must.True(t, TaskTypeInference.RequiresGPU())
	must.False(t, TaskTypeEmbeddings.RequiresGPU())

	must.False(t, TaskTypeInference.PrefersCPU())
	for _, tt := range []TaskType{TaskTypeEmbeddings, TaskTypeIndex, TaskTypeTokenize, TaskTypePreprocess} {
		must.True(t, tt.PrefersCPU())
	}
}

func TestTaskType_UnmarshalJSON(t *testing.T) {
	ci.Parallel(t)

	var tt TaskType
	must.NoError(t, json.Unmarshal([]byte(`"embed"`), &tt))
	must.Eq(t, TaskTypeEmbeddings, tt)

	err := json.Unmarshal([]byte(`"TRAINING"`), &tt)
	must.Error(t, err)
	must.True(t, IsErrValidation(err))

	err = json.Unmarshal([]byte(`42`), &tt)
	must.Error(t, err)
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	ci.Parallel(t)

	all := []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled}

	legal := map[JobStatus][]JobStatus{
		JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
		JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := from == to
			for _, l := range legal[from] {
				if l == to {
					want = true
				}
			}
			must.Eq(t, want, from.CanTransitionTo(to),
				must.Sprintf("%s -> %s", from, to))
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	ci.Parallel(t)

	must.False(t, JobStatusQueued.Terminal())
	must.False(t, JobStatusRunning.Terminal())
	must.True(t, JobStatusCompleted.Terminal())
	must.True(t, JobStatusFailed.Terminal())
	must.True(t, JobStatusCancelled.Terminal())
}

func TestParseJobStatus(t *testing.T) {
	ci.Parallel(t)

	got, err := ParseJobStatus("running")
	must.NoError(t, err)
	must.Eq(t, JobStatusRunning, got)

	_, err = ParseJobStatus("PAUSED")
	must.Error(t, err)
	must.True(t, IsErrValidation(err))
}

func TestParseRolePreference(t *testing.T) {
	ci.Parallel(t)

	got, err := ParseRolePreference("prefer_inference")
	must.NoError(t, err)
	must.Eq(t, RolePreferInference, got)

	_, err = ParseRolePreference("PREFER_TRAINING")
	must.Error(t, err)
}

func TestNodePolicy_EffectiveGPUCap(t *testing.T) {
	ci.Parallel(t)

	p := DefaultNodePolicy()
	must.Eq(t, 100.0, p.EffectiveGPUCap())

	p.GPUCapPercent = pointer.Of(40.0)
	must.Eq(t, 40.0, p.EffectiveGPUCap())
}

func TestNodePolicy_AllowsTask(t *testing.T) {
	ci.Parallel(t)

	p := DefaultNodePolicy()
	must.True(t, p.AllowsTask(TaskTypeInference))

	p.TaskAllowlist = []TaskType{TaskTypeIndex}
	must.False(t, p.AllowsTask(TaskTypeInference))
	must.True(t, p.AllowsTask(TaskTypeIndex))
}

func TestNode_Copy(t *testing.T) {
	ci.Parallel(t)

	now := time.Now().UTC()
	node := &Node{
		NodeID: "node-1",
		Status: NodeStatusOnline,
		Capabilities: &NodeCapabilities{
			GPUName:   pointer.Of("RTX"),
			TaskTypes: []TaskType{TaskTypeInference},
			Labels:    []string{"gpu"},
			HasGPU:    true,
		},
		Metrics: &NodeMetrics{
			CPUPercent: 12,
			GPUPercent: pointer.Of(5.0),
			Extra:      map[string]any{"temp": 61.0},
		},
		Policy:   DefaultNodePolicy(),
		LastSeen: &now,
	}

	cp := node.Copy()
	must.Eq(t, node, cp)

	// Mutating the copy must not leak into the original.
	*cp.Capabilities.GPUName = "other"
	cp.Capabilities.Labels[0] = "cpu"
	*cp.Metrics.GPUPercent = 99
	cp.Metrics.Extra["temp"] = 0.0
	cp.Policy.TaskAllowlist[0] = TaskTypeIndex
	*cp.LastSeen = now.Add(time.Hour)

	must.Eq(t, "RTX", *node.Capabilities.GPUName)
	must.Eq(t, "gpu", node.Capabilities.Labels[0])
	must.Eq(t, 5.0, *node.Metrics.GPUPercent)
	must.Eq(t, 61.0, node.Metrics.Extra["temp"])
	must.Eq(t, TaskTypeInference, node.Policy.TaskAllowlist[0])
	must.Eq(t, now, *node.LastSeen)
}

func TestJob_Copy(t *testing.T) {
	ci.Parallel(t)

	job := &Job{
		ID:             "job-1",
		Type:           TaskTypeEmbeddings,
		Status:         JobStatusRunning,
		AssignedNodeID: pointer.Of("node-1"),
		Error:          pointer.Of("boom"),
	}

	cp := job.Copy()
	*cp.AssignedNodeID = "node-2"
	*cp.Error = "other"

	must.Eq(t, "node-1", *job.AssignedNodeID)
	must.Eq(t, "boom", *job.Error)
}
