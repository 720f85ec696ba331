// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"encoding/json"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// AgentRegisterRequest is the POST /v1/agent/register payload.
type AgentRegisterRequest struct {
	NodeID       string                `json:"node_id"`
	DisplayName  string                `json:"display_name"`
	IP           string                `json:"ip"`
	Port         int                   `json:"port"`
	Capabilities *RegisterCapabilities `json:"capabilities"`
}

// RegisterCapabilities mirrors NodeCapabilities on the wire, minus the
// derived has_gpu field which the coordinator computes.
type RegisterCapabilities struct {
	CPUCores    int        `json:"cpu_cores"`
	CPUThreads  int        `json:"cpu_threads"`
	RAMTotalGB  float64    `json:"ram_total_gb"`
	GPUName     *string    `json:"gpu_name,omitempty"`
	VRAMTotalGB *float64   `json:"vram_total_gb,omitempty"`
	OS          string     `json:"os"`
	Arch        string     `json:"arch"`
	TaskTypes   []TaskType `json:"task_types"`
	Labels      []string   `json:"labels"`
}

func (r *AgentRegisterRequest) Validate() error {
	var mErr multierror.Error
	if strings.TrimSpace(r.NodeID) == "" {
		mErr.Errors = append(mErr.Errors, NewValidationError("node_id is required"))
	}
	if len(r.NodeID) > MaxNodeIDLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("node_id exceeds %d characters", MaxNodeIDLength))
	}
	if len(r.DisplayName) > MaxDisplayNameLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("display_name exceeds %d characters", MaxDisplayNameLength))
	}
	if len(r.IP) > MaxIPLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("ip exceeds %d characters", MaxIPLength))
	}
	if r.Port < 0 || r.Port > 65535 {
		mErr.Errors = append(mErr.Errors, NewValidationError("port %d outside 0-65535", r.Port))
	}
	if c := r.Capabilities; c != nil {
		if c.CPUCores < 0 {
			mErr.Errors = append(mErr.Errors, NewValidationError("cpu_cores must be non-negative"))
		}
		if c.CPUThreads < 0 {
			mErr.Errors = append(mErr.Errors, NewValidationError("cpu_threads must be non-negative"))
		}
		if c.RAMTotalGB < 0 {
			mErr.Errors = append(mErr.Errors, NewValidationError("ram_total_gb must be non-negative"))
		}
		if c.VRAMTotalGB != nil && *c.VRAMTotalGB < 0 {
			mErr.Errors = append(mErr.Errors, NewValidationError("vram_total_gb must be non-negative"))
		}
	}
	return mErr.ErrorOrNil()
}

// AgentHeartbeatRequest is the POST /v1/agent/heartbeat payload.
type AgentHeartbeatRequest struct {
	NodeID  string            `json:"node_id"`
	Metrics *HeartbeatMetrics `json:"metrics"`
}

// HeartbeatMetrics is the metrics block of a heartbeat. The raw submission
// is retained in Extra so unknown gauges survive the round trip.
type HeartbeatMetrics struct {
	CPUPercent  float64  `json:"cpu_percent"`
	RAMUsedGB   float64  `json:"ram_used_gb"`
	RAMPercent  float64  `json:"ram_percent"`
	GPUPercent  *float64 `json:"gpu_percent,omitempty"`
	VRAMUsedGB  *float64 `json:"vram_used_gb,omitempty"`
	RunningJobs int      `json:"running_jobs"`

	Extra map[string]any `json:"-"`
}

func (m *HeartbeatMetrics) UnmarshalJSON(data []byte) error {
	type alias HeartbeatMetrics
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = HeartbeatMetrics(a)
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err == nil {
		m.Extra = extra
	}
	return nil
}

func (m *HeartbeatMetrics) MarshalJSON() ([]byte, error) {
	type alias HeartbeatMetrics
	return json.Marshal((*alias)(m))
}

func (r *AgentHeartbeatRequest) Validate() error {
	var mErr multierror.Error
	if strings.TrimSpace(r.NodeID) == "" {
		mErr.Errors = append(mErr.Errors, NewValidationError("node_id is required"))
	}
	if len(r.NodeID) > MaxNodeIDLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("node_id exceeds %d characters", MaxNodeIDLength))
	}
	m := r.Metrics
	if m == nil {
		mErr.Errors = append(mErr.Errors, NewValidationError("metrics block is required"))
		return mErr.ErrorOrNil()
	}
	if m.CPUPercent < 0 || m.CPUPercent > 100 {
		mErr.Errors = append(mErr.Errors, NewValidationError("cpu_percent %.3f outside 0-100", m.CPUPercent))
	}
	if m.RAMPercent < 0 || m.RAMPercent > 100 {
		mErr.Errors = append(mErr.Errors, NewValidationError("ram_percent %.3f outside 0-100", m.RAMPercent))
	}
	if m.GPUPercent != nil && (*m.GPUPercent < 0 || *m.GPUPercent > 100) {
		mErr.Errors = append(mErr.Errors, NewValidationError("gpu_percent %.3f outside 0-100", *m.GPUPercent))
	}
	if m.RAMUsedGB < 0 {
		mErr.Errors = append(mErr.Errors, NewValidationError("ram_used_gb must be non-negative"))
	}
	if m.VRAMUsedGB != nil && *m.VRAMUsedGB < 0 {
		mErr.Errors = append(mErr.Errors, NewValidationError("vram_used_gb must be non-negative"))
	}
	if m.RunningJobs < 0 {
		mErr.Errors = append(mErr.Errors, NewValidationError("running_jobs must be non-negative"))
	}
	return mErr.ErrorOrNil()
}

// ToNodeMetrics converts the wire metrics into the stored representation,
// stamping ts as the heartbeat moment.
func (m *HeartbeatMetrics) ToNodeMetrics(ts time.Time) *NodeMetrics {
	nm := &NodeMetrics{
		CPUPercent:  m.CPUPercent,
		RAMUsedGB:   m.RAMUsedGB,
		RAMPercent:  m.RAMPercent,
		GPUPercent:  m.GPUPercent,
		VRAMUsedGB:  m.VRAMUsedGB,
		RunningJobs: m.RunningJobs,
		HeartbeatTS: ts.UTC(),
	}
	if len(m.Extra) > 0 {
		nm.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			nm.Extra[k] = v
		}
	}
	return nm
}

// NodePolicyRequest is the PUT /v1/nodes/{id}/policy payload.
type NodePolicyRequest struct {
	Enabled        *bool           `json:"enabled"`
	CPUCapPercent  *float64        `json:"cpu_cap_percent"`
	GPUCapPercent  *float64        `json:"gpu_cap_percent"`
	RAMCapPercent  *float64        `json:"ram_cap_percent"`
	TaskAllowlist  []TaskType      `json:"task_allowlist"`
	RolePreference *RolePreference `json:"role_preference"`
}

func (r *NodePolicyRequest) Validate() error {
	var mErr multierror.Error
	checkPercent := func(name string, v *float64) {
		if v != nil && (*v < 0 || *v > 100) {
			mErr.Errors = append(mErr.Errors, NewValidationError("%s %.3f outside 0-100", name, *v))
		}
	}
	checkPercent("cpu_cap_percent", r.CPUCapPercent)
	checkPercent("gpu_cap_percent", r.GPUCapPercent)
	checkPercent("ram_cap_percent", r.RAMCapPercent)
	return mErr.ErrorOrNil()
}

// Apply overlays the request onto an existing policy, leaving omitted fields
// untouched. The caller validates first.
func (r *NodePolicyRequest) Apply(p *NodePolicy) *NodePolicy {
	np := p.Copy()
	if np == nil {
		np = DefaultNodePolicy()
	}
	if r.Enabled != nil {
		np.Enabled = *r.Enabled
	}
	if r.CPUCapPercent != nil {
		np.CPUCapPercent = *r.CPUCapPercent
	}
	if r.GPUCapPercent != nil {
		gpuCap := *r.GPUCapPercent
		np.GPUCapPercent = &gpuCap
	}
	if r.RAMCapPercent != nil {
		np.RAMCapPercent = *r.RAMCapPercent
	}
	if r.TaskAllowlist != nil {
		np.TaskAllowlist = append([]TaskType(nil), r.TaskAllowlist...)
	}
	if r.RolePreference != nil {
		np.RolePreference = *r.RolePreference
	}
	return np
}

// JobCreateRequest is the POST /v1/jobs payload. TaskType is a raw string so
// lenient alias parsing happens in one place, with a 422 on unknown values.
type JobCreateRequest struct {
	TaskType   string  `json:"task_type"`
	PayloadRef *string `json:"payload_ref,omitempty"`
}

func (r *JobCreateRequest) Validate() error {
	var mErr multierror.Error
	if _, err := ParseTaskType(r.TaskType); err != nil {
		mErr.Errors = append(mErr.Errors, err)
	}
	if r.PayloadRef != nil && len(*r.PayloadRef) > MaxPayloadRefLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("payload_ref exceeds %d characters", MaxPayloadRefLength))
	}
	return mErr.ErrorOrNil()
}

// JobStatusUpdateRequest is the POST /v1/jobs/{id}/status payload.
type JobStatusUpdateRequest struct {
	Status string  `json:"status"`
	Error  *string `json:"error,omitempty"`
}

func (r *JobStatusUpdateRequest) Validate() error {
	var mErr multierror.Error
	if _, err := ParseJobStatus(r.Status); err != nil {
		mErr.Errors = append(mErr.Errors, err)
	}
	if r.Error != nil && len(*r.Error) > MaxErrorLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("error exceeds %d characters", MaxErrorLength))
	}
	return mErr.ErrorOrNil()
}

// SimulateScheduleRequest is the POST /v1/simulate/schedule payload.
type SimulateScheduleRequest struct {
	TaskType string `json:"task_type"`
}

// NodeDetail is the GET /v1/nodes/{id} response envelope.
type NodeDetail struct {
	Node           *Node          `json:"node"`
	MetricsHistory []*NodeMetrics `json:"metrics_history,omitempty"`
}

// ClusterSummary aggregates fleet-wide capacity for the dashboard.
type ClusterSummary struct {
	TotalNodes               int     `json:"total_nodes"`
	OnlineNodes              int     `json:"online_nodes"`
	OfflineNodes             int     `json:"offline_nodes"`
	TotalEffectiveCPUThreads float64 `json:"total_effective_cpu_threads"`
	TotalEffectiveRAMGB      float64 `json:"total_effective_ram_gb"`
	TotalEffectiveVRAMGB     float64 `json:"total_effective_vram_gb"`
	ActiveRunningJobsTotal   int     `json:"active_running_jobs_total"`
}

// JobListFilter narrows GET /v1/jobs results. Nil fields match everything.
type JobListFilter struct {
	Status   *JobStatus
	TaskType *TaskType
	NodeID   *string
}
