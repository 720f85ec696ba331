// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"time"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/uuid"
	"github.com/edgemesh/edgemesh/scheduler"
	metrics "github.com/hashicorp/go-metrics"
)

// CreateJob creates a QUEUED job and runs the scheduler over the current
// node set to pick its assignment. No eligible node is not an error; the
// job stays queued and unassigned.
func (s *Server) CreateJob(req *structs.JobCreateRequest) (*structs.Job, error) {
	defer metrics.MeasureSince([]string{"jobs", "create"}, time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}
	taskType, err := structs.ParseTaskType(req.TaskType)
	if err != nil {
		return nil, err
	}

	nodes, err := s.state.Nodes()
	if err != nil {
		return nil, err
	}

	job := &structs.Job{
		ID:     uuid.Short("job"),
		Type:   taskType,
		Status: structs.JobStatusQueued,
	}
	if req.PayloadRef != nil {
		ref := *req.PayloadRef
		job.PayloadRef = &ref
	}
	if nodeID, ok := scheduler.PickNode(nodes, taskType); ok {
		job.AssignedNodeID = &nodeID
	}

	created, err := s.state.CreateJob(job)
	if err != nil {
		return nil, err
	}

	assigned := "<none>"
	if created.AssignedNodeID != nil {
		assigned = *created.AssignedNodeID
	}
	s.logger.Info("job created", "job_id", created.ID, "type", created.Type, "node_id", assigned)
	return created, nil
}

// TransitionJob applies an operator status update through the store's state
// machine. NotFound and Conflict failures propagate as typed errors for the
// HTTP layer to translate.
func (s *Server) TransitionJob(jobID string, req *structs.JobStatusUpdateRequest) (*structs.Job, error) {
	defer metrics.MeasureSince([]string{"jobs", "transition"}, time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}
	newStatus, err := structs.ParseJobStatus(req.Status)
	if err != nil {
		return nil, err
	}
	return s.state.TransitionJobStatus(jobID, newStatus, req.Error)
}

// SimulateSchedule runs the scheduler for a task type without creating a
// job, returning the full ranked candidate list and the chosen node.
type SimulateScheduleResponse struct {
	TaskType     structs.TaskType             `json:"task_type"`
	ChosenNodeID *string                      `json:"chosen_node_id"`
	Reason       string                       `json:"reason,omitempty"`
	Candidates   []*scheduler.RankedCandidate `json:"candidates"`
}

func (s *Server) SimulateSchedule(rawTaskType string) (*SimulateScheduleResponse, error) {
	taskType, err := structs.ParseTaskType(rawTaskType)
	if err != nil {
		return nil, err
	}

	nodes, err := s.state.Nodes()
	if err != nil {
		return nil, err
	}

	ranked := scheduler.RankNodes(nodes, taskType)
	resp := &SimulateScheduleResponse{
		TaskType:   taskType,
		Candidates: ranked,
	}
	if len(ranked) > 0 && ranked[0].Eligible {
		chosen := ranked[0].NodeID
		resp.ChosenNodeID = &chosen
	} else {
		resp.Reason = "No eligible nodes found"
	}
	return resp, nil
}

// ClusterSummary aggregates fleet capacity. Effective capacity and running
// job counts only include ONLINE nodes; a silent node's stale numbers would
// otherwise inflate the totals.
func (s *Server) ClusterSummary() (*structs.ClusterSummary, error) {
	nodes, err := s.state.Nodes()
	if err != nil {
		return nil, err
	}

	summary := &structs.ClusterSummary{TotalNodes: len(nodes)}
	for _, node := range nodes {
		switch node.Status {
		case structs.NodeStatusOnline:
			summary.OnlineNodes++
		case structs.NodeStatusOffline:
			summary.OfflineNodes++
		}
		if node.Status != structs.NodeStatusOnline {
			continue
		}
		ec := scheduler.ComputeEffectiveCapacity(node)
		summary.TotalEffectiveCPUThreads += ec.CPUThreads
		summary.TotalEffectiveRAMGB += ec.RAMGB
		if ec.VRAMGB != nil {
			summary.TotalEffectiveVRAMGB += *ec.VRAMGB
		}
		if node.Metrics != nil {
			summary.ActiveRunningJobsTotal += node.Metrics.RunningJobs
		}
	}
	return summary, nil
}
