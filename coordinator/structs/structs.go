// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package structs holds the domain model shared by the coordinator, the
// scheduler, and the HTTP surface: nodes, jobs, their enumerations, and the
// events published when node state changes.
package structs

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgemesh/edgemesh/helper/pointer"
)

// TaskType classifies the work a node can perform.
type TaskType string

const (
	TaskTypeInference  TaskType = "INFERENCE"
	TaskTypeEmbeddings TaskType = "EMBEDDINGS"
	TaskTypeIndex      TaskType = "INDEX"
	TaskTypeTokenize   TaskType = "TOKENIZE"
	TaskTypePreprocess TaskType = "PREPROCESS"
)

// taskTypeAliases is the single normalized mapping from wire strings to task
// types. Lookups are case-insensitive; anything missing from this table is
// rejected at the boundary.
var taskTypeAliases = map[string]TaskType{
	"INFER":         TaskTypeInference,
	"INFERENCE":     TaskTypeInference,
	"EMBED":         TaskTypeEmbeddings,
	"EMBEDDING":     TaskTypeEmbeddings,
	"EMBEDDINGS":    TaskTypeEmbeddings,
	"INDEX":         TaskTypeIndex,
	"TOKENIZE":      TaskTypeTokenize,
	"PREPROCESS":    TaskTypePreprocess,
	"PREPROCESSING": TaskTypePreprocess,
}

// AllTaskTypes returns every task type in declaration order. Callers own the
// returned slice.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeInference,
		TaskTypeEmbeddings,
		TaskTypeIndex,
		TaskTypeTokenize,
		TaskTypePreprocess,
	}
}

// ParseTaskType normalizes a wire string into a TaskType, accepting the
// documented aliases. Unknown values are a validation error.
func ParseTaskType(s string) (TaskType, error) {
	if t, ok := taskTypeAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown task type %q", ErrValidation, s)
}

// TaskTypesFromLabels derives task types from free-form node labels using
// the alias table, preserving declaration order and dropping duplicates.
// Labels that match nothing are ignored; they are not an error.
func TaskTypesFromLabels(labels []string) []TaskType {
	seen := make(map[TaskType]bool)
	var out []TaskType
	for _, label := range labels {
		t, ok := taskTypeAliases[strings.ToUpper(strings.TrimSpace(label))]
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// RequiresGPU reports whether the task type is scheduled onto GPU hardware.
func (t TaskType) RequiresGPU() bool {
	return t == TaskTypeInference
}

// PrefersCPU reports whether the task type favors CPU-only nodes.
func (t TaskType) PrefersCPU() bool {
	switch t {
	case TaskTypeEmbeddings, TaskTypeIndex, TaskTypeTokenize, TaskTypePreprocess:
		return true
	default:
		return false
	}
}

func (t *TaskType) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	parsed, err := ParseTaskType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// jobStatusTransitions is the legal transition set. Self-transitions are
// handled separately as no-ops. CANCELLED is reachable from both QUEUED and
// RUNNING so operators have an abort path.
var jobStatusTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusQueued: {
		JobStatusRunning:   true,
		JobStatusCancelled: true,
	},
	JobStatusRunning: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	},
	JobStatusCompleted: {},
	JobStatusFailed:    {},
	JobStatusCancelled: {},
}

func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case JobStatusQueued:
		return JobStatusQueued, nil
	case JobStatusRunning:
		return JobStatusRunning, nil
	case JobStatusCompleted:
		return JobStatusCompleted, nil
	case JobStatusFailed:
		return JobStatusFailed, nil
	case JobStatusCancelled:
		return JobStatusCancelled, nil
	}
	return "", fmt.Errorf("%w: unknown job status %q", ErrValidation, s)
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	raw, err := unquote(data)
	if err != nil {
		return err
	}
	parsed, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal transition target from s.
// A self-transition is always legal and is treated as a no-op by the store.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return true
	}
	return jobStatusTransitions[s][next]
}

// NodeStatus is the liveness state of a node.
type NodeStatus string

const (
	NodeStatusUnknown NodeStatus = "UNKNOWN"
	NodeStatusOnline  NodeStatus = "ONLINE"
	NodeStatusOffline NodeStatus = "OFFLINE"
)

func ParseNodeStatus(s string) (NodeStatus, error) {
	switch NodeStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case NodeStatusUnknown:
		return NodeStatusUnknown, nil
	case NodeStatusOnline:
		return NodeStatusOnline, nil
	case NodeStatusOffline:
		return NodeStatusOffline, nil
	}
	return "", fmt.Errorf("%w: unknown node status %q", ErrValidation, s)
}

// RolePreference is an operator hint nudging the scheduler toward or away
// from particular task classes on a node.
type RolePreference string

const (
	RoleAuto             RolePreference = "AUTO"
	RolePreferInference  RolePreference = "PREFER_INFERENCE"
	RolePreferEmbeddings RolePreference = "PREFER_EMBEDDINGS"
	RolePreferPreprocess RolePreference = "PREFER_PREPROCESS"
)

func ParseRolePreference(s string) (RolePreference, error) {
	switch RolePreference(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAuto:
		return RoleAuto, nil
	case RolePreferInference:
		return RolePreferInference, nil
	case RolePreferEmbeddings:
		return RolePreferEmbeddings, nil
	case RolePreferPreprocess:
		return RolePreferPreprocess, nil
	}
	return "", fmt.Errorf("%w: unknown role preference %q", ErrValidation, s)
}

func (r *RolePreference) UnmarshalJSON(data []byte) error {
	raw, err := unquote(data)
	if err != nil {
		return err
	}
	parsed, err := ParseRolePreference(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// unquote strips the JSON string quoting from data without pulling in a full
// decoder; enum fields are always plain strings.
func unquote(data []byte) (string, error) {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("%w: expected string, got %s", ErrValidation, s)
	}
	return s[1 : len(s)-1], nil
}

// Field length bounds enforced at the API boundary.
const (
	MaxNodeIDLength      = 128
	MaxDisplayNameLength = 256
	MaxIPLength          = 64
	MaxPayloadRefLength  = 512
	MaxErrorLength       = 2048
)

// NodeCapabilities is the static hardware and affinity description submitted
// at registration time. The blob is replaced wholesale on re-registration.
type NodeCapabilities struct {
	CPUCores    int        `json:"cpu_cores"`
	CPUThreads  int        `json:"cpu_threads"`
	RAMTotalGB  float64    `json:"ram_total_gb"`
	GPUName     *string    `json:"gpu_name,omitempty"`
	VRAMTotalGB *float64   `json:"vram_total_gb,omitempty"`
	OS          string     `json:"os"`
	Arch        string     `json:"arch"`
	TaskTypes   []TaskType `json:"task_types"`
	Labels      []string   `json:"labels"`
	HasGPU      bool       `json:"has_gpu"`
}

// DefaultNodeCapabilities is what an auto-created node carries until its
// agent registers: no hardware detail and the full task type set.
func DefaultNodeCapabilities() *NodeCapabilities {
	return &NodeCapabilities{
		TaskTypes: AllTaskTypes(),
		Labels:    []string{},
	}
}

func (c *NodeCapabilities) Copy() *NodeCapabilities {
	if c == nil {
		return nil
	}
	nc := *c
	nc.GPUName = pointer.Copy(c.GPUName)
	nc.VRAMTotalGB = pointer.Copy(c.VRAMTotalGB)
	nc.TaskTypes = append([]TaskType(nil), c.TaskTypes...)
	nc.Labels = append([]string(nil), c.Labels...)
	return &nc
}

// NodeMetrics is a point-in-time resource usage sample from a heartbeat.
type NodeMetrics struct {
	CPUPercent  float64  `json:"cpu_percent"`
	RAMUsedGB   float64  `json:"ram_used_gb"`
	RAMPercent  float64  `json:"ram_percent"`
	GPUPercent  *float64 `json:"gpu_percent,omitempty"`
	VRAMUsedGB  *float64 `json:"vram_used_gb,omitempty"`
	RunningJobs int      `json:"running_jobs"`

	// HeartbeatTS is the wall-clock moment the sample was taken; the store
	// mirrors it into the node's last_seen.
	HeartbeatTS time.Time `json:"heartbeat_ts"`

	// Extra preserves the raw key-value submission so operators can ship
	// ad-hoc gauges without a schema change.
	Extra map[string]any `json:"extra,omitempty"`
}

func (m *NodeMetrics) Copy() *NodeMetrics {
	if m == nil {
		return nil
	}
	nm := *m
	nm.GPUPercent = pointer.Copy(m.GPUPercent)
	nm.VRAMUsedGB = pointer.Copy(m.VRAMUsedGB)
	if m.Extra != nil {
		nm.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			nm.Extra[k] = v
		}
	}
	return &nm
}

// NodePolicy carries the operator-controlled caps and preferences that gate
// scheduling onto a node.
type NodePolicy struct {
	Enabled        bool           `json:"enabled"`
	CPUCapPercent  float64        `json:"cpu_cap_percent"`
	GPUCapPercent  *float64       `json:"gpu_cap_percent,omitempty"`
	RAMCapPercent  float64        `json:"ram_cap_percent"`
	TaskAllowlist  []TaskType     `json:"task_allowlist"`
	RolePreference RolePreference `json:"role_preference"`
}

// DefaultNodePolicy permits everything: enabled, caps at 100, all task
// types, AUTO role.
func DefaultNodePolicy() *NodePolicy {
	return &NodePolicy{
		Enabled:        true,
		CPUCapPercent:  100,
		RAMCapPercent:  100,
		TaskAllowlist:  AllTaskTypes(),
		RolePreference: RoleAuto,
	}
}

func (p *NodePolicy) Copy() *NodePolicy {
	if p == nil {
		return nil
	}
	np := *p
	np.GPUCapPercent = pointer.Copy(p.GPUCapPercent)
	np.TaskAllowlist = append([]TaskType(nil), p.TaskAllowlist...)
	return &np
}

// AllowsTask reports whether the task type is in the policy allowlist.
func (p *NodePolicy) AllowsTask(t TaskType) bool {
	for _, allowed := range p.TaskAllowlist {
		if allowed == t {
			return true
		}
	}
	return false
}

// EffectiveGPUCap returns the GPU cap percent, treating an unset cap as
// unlimited (100).
func (p *NodePolicy) EffectiveGPUCap() float64 {
	if p.GPUCapPercent == nil {
		return 100
	}
	return *p.GPUCapPercent
}

// Node is an edge host known to the coordinator: identity, static
// capabilities, the latest metrics sample, operator policy, and liveness.
type Node struct {
	NodeID      string `json:"node_id"`
	DisplayName string `json:"display_name"`
	IP          string `json:"ip"`
	Port        int    `json:"port"`

	Status       NodeStatus        `json:"status"`
	Capabilities *NodeCapabilities `json:"capabilities"`
	Metrics      *NodeMetrics      `json:"metrics"`
	Policy       *NodePolicy       `json:"policy"`

	// LastSeen tracks the most recent heartbeat; nil until the first
	// metrics write.
	LastSeen  *time.Time `json:"last_seen"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (n *Node) Copy() *Node {
	if n == nil {
		return nil
	}
	nn := *n
	nn.Capabilities = n.Capabilities.Copy()
	nn.Metrics = n.Metrics.Copy()
	nn.Policy = n.Policy.Copy()
	nn.LastSeen = pointer.Copy(n.LastSeen)
	return &nn
}

// HasGPU reports whether the node advertises GPU hardware.
func (n *Node) HasGPU() bool {
	return n.Capabilities != nil && n.Capabilities.HasGPU
}

// Job is a unit of work to place on a node.
type Job struct {
	ID             string     `json:"id"`
	Type           TaskType   `json:"type"`
	Status         JobStatus  `json:"status"`
	PayloadRef     *string    `json:"payload_ref,omitempty"`
	AssignedNodeID *string    `json:"assigned_node_id"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Error          *string    `json:"error,omitempty"`
}

func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	nj := *j
	nj.PayloadRef = pointer.Copy(j.PayloadRef)
	nj.AssignedNodeID = pointer.Copy(j.AssignedNodeID)
	nj.StartedAt = pointer.Copy(j.StartedAt)
	nj.CompletedAt = pointer.Copy(j.CompletedAt)
	nj.Error = pointer.Copy(j.Error)
	return &nj
}

// NodeUpdateEvent is the value broadcast on the event broker after every
// accepted heartbeat. Fields are copies; subscribers never share memory with
// the store.
type NodeUpdateEvent struct {
	NodeID    string       `json:"node_id"`
	Status    NodeStatus   `json:"status"`
	Metrics   *NodeMetrics `json:"metrics"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DefaultErrorOnFailure is stored when a job enters FAILED without a
// caller-supplied error message.
const DefaultErrorOnFailure = "Job failed"
