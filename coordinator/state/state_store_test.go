// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/pointer"
	"github.com/edgemesh/edgemesh/helper/testlog"
	"github.com/shoenig/test/must"
)

func testStateStore(t *testing.T) *StateStore {
	s, err := Open("", testlog.HCLogger(t))
	must.NoError(t, err)
	return s
}

func TestStateStore_UpsertNodeIdentity_AutoCreate(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	node, err := s.UpsertNodeIdentity("node-1", "", "", 0)
	must.NoError(t, err)

	// Auto-created nodes get placeholder identity and open defaults.
	must.Eq(t, "node-1", node.NodeID)
	must.Eq(t, "node-1", node.DisplayName)
	must.Eq(t, "0.0.0.0", node.IP)
	must.Eq(t, structs.NodeStatusUnknown, node.Status)
	must.Nil(t, node.LastSeen)
	must.NotNil(t, node.Capabilities)
	must.NotNil(t, node.Policy)
	must.True(t, node.Policy.Enabled)
}

func TestStateStore_UpsertNodeIdentity_Update(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.UpsertNodeIdentity("node-1", "Worker One", "10.0.0.5", 9100)
	must.NoError(t, err)

	// Empty display name and ip leave the stored values alone.
	node, err := s.UpsertNodeIdentity("node-1", "", "", 9200)
	must.NoError(t, err)
	must.Eq(t, "Worker One", node.DisplayName)
	must.Eq(t, "10.0.0.5", node.IP)
	must.Eq(t, 9200, node.Port)
}

func TestStateStore_UpdateNodeMetrics(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	ts := time.Now().UTC().Add(-2 * time.Second).Truncate(time.Millisecond)
	node, err := s.UpdateNodeMetrics("node-1", &structs.NodeMetrics{
		CPUPercent:  33,
		RAMPercent:  50,
		HeartbeatTS: ts,
	})
	must.NoError(t, err)

	// Heartbeats force ONLINE and mirror the sample time into last_seen,
	// auto-creating the node when needed.
	must.Eq(t, structs.NodeStatusOnline, node.Status)
	must.NotNil(t, node.LastSeen)
	must.True(t, node.LastSeen.Equal(ts))
	must.Eq(t, 33.0, node.Metrics.CPUPercent)
}

func TestStateStore_UpdateNodeMetrics_ZeroTimestamp(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	before := time.Now().UTC()
	node, err := s.UpdateNodeMetrics("node-1", &structs.NodeMetrics{CPUPercent: 5})
	must.NoError(t, err)
	must.False(t, node.Metrics.HeartbeatTS.IsZero())
	must.False(t, node.Metrics.HeartbeatTS.Before(before))
}

func TestStateStore_UpdateNodePolicy(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	policy := structs.DefaultNodePolicy()
	policy.CPUCapPercent = 60

	// Policy writes never auto-create.
	_, err := s.UpdateNodePolicy("ghost", policy)
	must.ErrorIs(t, err, structs.ErrNodeNotFound)

	_, err = s.UpsertNodeIdentity("node-1", "", "", 0)
	must.NoError(t, err)

	node, err := s.UpdateNodePolicy("node-1", policy)
	must.NoError(t, err)
	must.Eq(t, 60.0, node.Policy.CPUCapPercent)

	// Cap percents outside [0,100] reject the write.
	bad := structs.DefaultNodePolicy()
	bad.RAMCapPercent = 150
	_, err = s.UpdateNodePolicy("node-1", bad)
	must.Error(t, err)
	must.True(t, structs.IsErrValidation(err))

	bad = structs.DefaultNodePolicy()
	bad.GPUCapPercent = pointer.Of(-5.0)
	_, err = s.UpdateNodePolicy("node-1", bad)
	must.Error(t, err)
}

func TestStateStore_GetNode(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.GetNode("ghost")
	must.ErrorIs(t, err, structs.ErrNodeNotFound)

	_, err = s.UpsertNodeIdentity("node-1", "", "", 0)
	must.NoError(t, err)

	node, err := s.GetNode("node-1")
	must.NoError(t, err)

	// Reads hand out copies; mutating one must not corrupt the store.
	node.DisplayName = "mutated"
	again, err := s.GetNode("node-1")
	must.NoError(t, err)
	must.Eq(t, "node-1", again.DisplayName)
}

func TestStateStore_Nodes_Ordering(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	for _, id := range []string{"node-c", "node-a", "node-b"} {
		_, err := s.UpsertNodeIdentity(id, "", "", 0)
		must.NoError(t, err)
	}

	nodes, err := s.Nodes()
	must.NoError(t, err)
	must.Len(t, 3, nodes)
	must.Eq(t, "node-a", nodes[0].NodeID)
	must.Eq(t, "node-b", nodes[1].NodeID)
	must.Eq(t, "node-c", nodes[2].NodeID)
}

func TestStateStore_MarkOfflineIfStale(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	old := time.Now().UTC().Add(-time.Minute)
	_, err := s.UpdateNodeMetrics("node-stale", &structs.NodeMetrics{HeartbeatTS: old})
	must.NoError(t, err)

	_, err = s.UpdateNodeMetrics("node-fresh", &structs.NodeMetrics{})
	must.NoError(t, err)

	// Never heartbeated: stays UNKNOWN, silence is not staleness.
	_, err = s.UpsertNodeIdentity("node-silent", "", "", 0)
	must.NoError(t, err)

	changed, err := s.MarkOfflineIfStale(15 * time.Second)
	must.NoError(t, err)
	must.Len(t, 1, changed)
	must.Eq(t, "node-stale", changed[0].NodeID)
	must.Eq(t, structs.NodeStatusOffline, changed[0].Status)

	fresh, _ := s.GetNode("node-fresh")
	must.Eq(t, structs.NodeStatusOnline, fresh.Status)
	silent, _ := s.GetNode("node-silent")
	must.Eq(t, structs.NodeStatusUnknown, silent.Status)

	// A second sweep has nothing left to demote.
	changed, err = s.MarkOfflineIfStale(15 * time.Second)
	must.NoError(t, err)
	must.Len(t, 0, changed)

	// A heartbeat brings the node straight back.
	node, err := s.UpdateNodeMetrics("node-stale", &structs.NodeMetrics{})
	must.NoError(t, err)
	must.Eq(t, structs.NodeStatusOnline, node.Status)
}

func TestStateStore_CreateJob(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	job, err := s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeEmbeddings})
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusQueued, job.Status)
	must.Eq(t, 0, job.Attempts)
	must.Nil(t, job.StartedAt)

	_, err = s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeIndex})
	must.Error(t, err)
	must.True(t, structs.IsErrValidation(err))

	_, err = s.CreateJob(&structs.Job{ID: "  ", Type: structs.TaskTypeIndex})
	must.Error(t, err)
}

func TestStateStore_TransitionJobStatus(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeEmbeddings})
	must.NoError(t, err)

	// QUEUED -> RUNNING: attempts tick, started_at stamped.
	job, err := s.TransitionJobStatus("job-1", structs.JobStatusRunning, nil)
	must.NoError(t, err)
	must.Eq(t, 1, job.Attempts)
	must.NotNil(t, job.StartedAt)
	must.Nil(t, job.CompletedAt)
	firstStart := *job.StartedAt

	// RUNNING -> COMPLETED stamps completed_at.
	job, err = s.TransitionJobStatus("job-1", structs.JobStatusCompleted, nil)
	must.NoError(t, err)
	must.NotNil(t, job.CompletedAt)

	// COMPLETED is terminal.
	_, err = s.TransitionJobStatus("job-1", structs.JobStatusRunning, nil)
	must.Error(t, err)
	must.True(t, structs.IsErrInvalidTransition(err))

	must.True(t, job.StartedAt.Equal(firstStart))
}

func TestStateStore_TransitionJobStatus_Failure(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeIndex})
	must.NoError(t, err)

	_, err = s.TransitionJobStatus("job-1", structs.JobStatusRunning, nil)
	must.NoError(t, err)

	// FAILED without a message stores the default error.
	job, err := s.TransitionJobStatus("job-1", structs.JobStatusFailed, nil)
	must.NoError(t, err)
	must.NotNil(t, job.Error)
	must.Eq(t, structs.DefaultErrorOnFailure, *job.Error)
	must.NotNil(t, job.CompletedAt)

	// Self-transition refreshes the error text only.
	job, err = s.TransitionJobStatus("job-1", structs.JobStatusFailed, pointer.Of("oom killed"))
	must.NoError(t, err)
	must.Eq(t, "oom killed", *job.Error)

	// FAILED -> COMPLETED is illegal.
	_, err = s.TransitionJobStatus("job-1", structs.JobStatusCompleted, nil)
	must.True(t, structs.IsErrInvalidTransition(err))
}

func TestStateStore_TransitionJobStatus_RunningClearsError(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeTokenize, Error: pointer.Of("leftover")})
	must.NoError(t, err)

	job, err := s.TransitionJobStatus("job-1", structs.JobStatusRunning, nil)
	must.NoError(t, err)
	must.Nil(t, job.Error)
}

func TestStateStore_TransitionJobStatus_Cancel(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.CreateJob(&structs.Job{ID: "job-q", Type: structs.TaskTypeIndex})
	must.NoError(t, err)
	_, err = s.CreateJob(&structs.Job{ID: "job-r", Type: structs.TaskTypeIndex})
	must.NoError(t, err)
	_, err = s.TransitionJobStatus("job-r", structs.JobStatusRunning, nil)
	must.NoError(t, err)

	// Cancel is legal from both QUEUED and RUNNING.
	job, err := s.TransitionJobStatus("job-q", structs.JobStatusCancelled, nil)
	must.NoError(t, err)
	must.NotNil(t, job.CompletedAt)
	must.Nil(t, job.Error)

	job, err = s.TransitionJobStatus("job-r", structs.JobStatusCancelled, pointer.Of("operator abort"))
	must.NoError(t, err)
	must.Eq(t, "operator abort", *job.Error)

	_, err = s.TransitionJobStatus("ghost", structs.JobStatusCancelled, nil)
	must.ErrorIs(t, err, structs.ErrJobNotFound)
}

func TestStateStore_AssignJob(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	_, err := s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeEmbeddings})
	must.NoError(t, err)

	job, err := s.AssignJob("job-1", pointer.Of("node-1"))
	must.NoError(t, err)
	must.Eq(t, "node-1", *job.AssignedNodeID)

	job, err = s.AssignJob("job-1", nil)
	must.NoError(t, err)
	must.Nil(t, job.AssignedNodeID)

	_, err = s.AssignJob("ghost", nil)
	must.ErrorIs(t, err, structs.ErrJobNotFound)
}

func TestStateStore_ListJobs(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	mk := func(id string, tt structs.TaskType, node *string) {
		_, err := s.CreateJob(&structs.Job{ID: id, Type: tt, AssignedNodeID: node})
		must.NoError(t, err)
	}
	mk("job-a", structs.TaskTypeEmbeddings, pointer.Of("node-1"))
	mk("job-b", structs.TaskTypeEmbeddings, pointer.Of("node-2"))
	mk("job-c", structs.TaskTypeIndex, pointer.Of("node-1"))
	_, err := s.TransitionJobStatus("job-b", structs.JobStatusRunning, nil)
	must.NoError(t, err)

	all, err := s.ListJobs(structs.JobListFilter{})
	must.NoError(t, err)
	must.Len(t, 3, all)

	queued, err := s.ListJobs(structs.JobListFilter{Status: pointer.Of(structs.JobStatusQueued)})
	must.NoError(t, err)
	must.Len(t, 2, queued)

	embeds, err := s.ListJobs(structs.JobListFilter{TaskType: pointer.Of(structs.TaskTypeEmbeddings)})
	must.NoError(t, err)
	must.Len(t, 2, embeds)

	onNode1, err := s.ListJobs(structs.JobListFilter{NodeID: pointer.Of("node-1")})
	must.NoError(t, err)
	must.Len(t, 2, onNode1)

	both, err := s.ListJobs(structs.JobListFilter{
		Status: pointer.Of(structs.JobStatusQueued),
		NodeID: pointer.Of("node-1"),
	})
	must.NoError(t, err)
	must.Len(t, 2, both)
	for _, j := range both {
		must.Eq(t, structs.JobStatusQueued, j.Status)
		must.Eq(t, "node-1", *j.AssignedNodeID)
	}
}

func TestStateStore_ListJobs_Ordering(t *testing.T) {
	ci.Parallel(t)
	s := testStateStore(t)

	// Jobs created in the same instant order by id ascending; otherwise
	// newest first.
	for _, id := range []string{"job-b", "job-a", "job-c"} {
		_, err := s.CreateJob(&structs.Job{ID: id, Type: structs.TaskTypeIndex})
		must.NoError(t, err)
	}

	jobs, err := s.ListJobs(structs.JobListFilter{})
	must.NoError(t, err)
	must.Len(t, 3, jobs)
	for i := 1; i < len(jobs); i++ {
		prev, cur := jobs[i-1], jobs[i]
		ordered := prev.CreatedAt.After(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID < cur.ID)
		must.True(t, ordered)
	}
}

func TestStateStore_Persistence(t *testing.T) {
	ci.Parallel(t)

	path := filepath.Join(t.TempDir(), "coordinator.db")
	logger := testlog.HCLogger(t)

	s, err := Open(path, logger)
	must.NoError(t, err)

	_, err = s.UpsertNodeIdentity("node-1", "Worker One", "10.0.0.5", 9100)
	must.NoError(t, err)
	_, err = s.UpdateNodeMetrics("node-1", &structs.NodeMetrics{CPUPercent: 20})
	must.NoError(t, err)
	_, err = s.CreateJob(&structs.Job{ID: "job-1", Type: structs.TaskTypeEmbeddings, AssignedNodeID: pointer.Of("node-1")})
	must.NoError(t, err)
	_, err = s.TransitionJobStatus("job-1", structs.JobStatusRunning, nil)
	must.NoError(t, err)

	must.NoError(t, s.Close())

	// Reopen replays the buckets.
	s2, err := Open(path, logger)
	must.NoError(t, err)
	defer s2.Close()

	node, err := s2.GetNode("node-1")
	must.NoError(t, err)
	must.Eq(t, "Worker One", node.DisplayName)
	must.Eq(t, structs.NodeStatusOnline, node.Status)
	must.NotNil(t, node.LastSeen)
	must.Eq(t, 20.0, node.Metrics.CPUPercent)

	job, err := s2.GetJob("job-1")
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusRunning, job.Status)
	must.Eq(t, 1, job.Attempts)
	must.NotNil(t, job.StartedAt)
	must.Eq(t, "node-1", *job.AssignedNodeID)
}
