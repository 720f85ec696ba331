// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"time"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	metrics "github.com/hashicorp/go-metrics"
)

// RegisterAgent handles an agent registration: identity first, then the
// capabilities blob. Idempotent per node id; re-registering replaces the
// previous capabilities wholesale. Registration alone never flips a node
// ONLINE, that takes a heartbeat.
func (s *Server) RegisterAgent(req *structs.AgentRegisterRequest) (*structs.Node, error) {
	defer metrics.MeasureSince([]string{"ingest", "register"}, time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.state.UpsertNodeIdentity(req.NodeID, req.DisplayName, req.IP, req.Port); err != nil {
		return nil, err
	}

	caps := normalizeCapabilities(req.Capabilities)
	node, err := s.state.UpsertNodeCapabilities(req.NodeID, caps)
	if err != nil {
		return nil, err
	}

	s.logger.Info("agent registered",
		"node_id", node.NodeID,
		"display_name", node.DisplayName,
		"has_gpu", caps.HasGPU,
		"task_types", len(caps.TaskTypes))
	return node, nil
}

// normalizeCapabilities converts the wire capabilities into the stored
// blob. Task types fall back from the explicit list, to label-derived
// types, to the full set; has_gpu is derived from the hardware fields.
func normalizeCapabilities(rc *structs.RegisterCapabilities) *structs.NodeCapabilities {
	if rc == nil {
		return structs.DefaultNodeCapabilities()
	}

	taskTypes := append([]structs.TaskType(nil), rc.TaskTypes...)
	if len(taskTypes) == 0 {
		taskTypes = structs.TaskTypesFromLabels(rc.Labels)
	}
	if len(taskTypes) == 0 {
		taskTypes = structs.AllTaskTypes()
	}

	labels := rc.Labels
	if labels == nil {
		labels = []string{}
	}

	return &structs.NodeCapabilities{
		CPUCores:    rc.CPUCores,
		CPUThreads:  rc.CPUThreads,
		RAMTotalGB:  rc.RAMTotalGB,
		GPUName:     rc.GPUName,
		VRAMTotalGB: rc.VRAMTotalGB,
		OS:          rc.OS,
		Arch:        rc.Arch,
		TaskTypes:   taskTypes,
		Labels:      append([]string(nil), labels...),
		HasGPU:      rc.GPUName != nil || rc.VRAMTotalGB != nil,
	}
}

// Heartbeat ingests a metrics sample: the store write flips the node
// ONLINE, the sample lands in the history ring, and the resulting update is
// fanned out on the broker. Returns the published event.
func (s *Server) Heartbeat(req *structs.AgentHeartbeatRequest) (*structs.NodeUpdateEvent, error) {
	defer metrics.MeasureSince([]string{"ingest", "heartbeat"}, time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}

	sample := req.Metrics.ToNodeMetrics(time.Now())
	node, err := s.state.UpdateNodeMetrics(req.NodeID, sample)
	if err != nil {
		return nil, err
	}

	s.history.Append(node.NodeID, node.Metrics)

	event := structs.NodeUpdateEvent{
		NodeID:    node.NodeID,
		Status:    node.Status,
		Metrics:   node.Metrics.Copy(),
		UpdatedAt: node.UpdatedAt,
	}
	s.broker.Publish(event)
	metrics.IncrCounter([]string{"ingest", "heartbeats"}, 1)

	return &event, nil
}
