// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/edgemesh/edgemesh/helper/pointer"
	"github.com/shoenig/test/must"
)

func TestAgentRegisterRequest_Validate(t *testing.T) {
	ci.Parallel(t)

	req := &AgentRegisterRequest{
		NodeID:      "node-1",
		DisplayName: "worker",
		IP:          "10.0.0.5",
		Port:        9100,
	}
	must.NoError(t, req.Validate())

	cases := []struct {
		name   string
		mutate func(*AgentRegisterRequest)
	}{
		{"missing node_id", func(r *AgentRegisterRequest) { r.NodeID = "  " }},
		{"node_id too long", func(r *AgentRegisterRequest) { r.NodeID = strings.Repeat("x", MaxNodeIDLength+1) }},
		{"display_name too long", func(r *AgentRegisterRequest) { r.DisplayName = strings.Repeat("x", MaxDisplayNameLength+1) }},
		{"ip too long", func(r *AgentRegisterRequest) { r.IP = strings.Repeat("1", MaxIPLength+1) }},
		{"port negative", func(r *AgentRegisterRequest) { r.Port = -1 }},
		{"port too high", func(r *AgentRegisterRequest) { r.Port = 65536 }},
		{"negative cores", func(r *AgentRegisterRequest) {
			r.Capabilities = &RegisterCapabilities{CPUCores: -1}
		}},
		{"negative vram", func(r *AgentRegisterRequest) {
			r.Capabilities = &RegisterCapabilities{VRAMTotalGB: pointer.Of(-1.0)}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := *req
			tc.mutate(&bad)
			must.Error(t, bad.Validate())
		})
	}
}

func TestAgentHeartbeatRequest_Validate(t *testing.T) {
	ci.Parallel(t)

	req := &AgentHeartbeatRequest{
		NodeID:  "node-1",
		Metrics: &HeartbeatMetrics{CPUPercent: 50, RAMPercent: 25, RAMUsedGB: 8},
	}
	must.NoError(t, req.Validate())

	must.Error(t, (&AgentHeartbeatRequest{NodeID: "node-1"}).Validate())
	must.Error(t, (&AgentHeartbeatRequest{Metrics: &HeartbeatMetrics{}}).Validate())

	cases := []struct {
		name   string
		mutate func(*HeartbeatMetrics)
	}{
		{"cpu over 100", func(m *HeartbeatMetrics) { m.CPUPercent = 100.1 }},
		{"cpu negative", func(m *HeartbeatMetrics) { m.CPUPercent = -0.1 }},
		{"ram percent over 100", func(m *HeartbeatMetrics) { m.RAMPercent = 101 }},
		{"gpu percent over 100", func(m *HeartbeatMetrics) { m.GPUPercent = pointer.Of(101.0) }},
		{"ram used negative", func(m *HeartbeatMetrics) { m.RAMUsedGB = -1 }},
		{"vram used negative", func(m *HeartbeatMetrics) { m.VRAMUsedGB = pointer.Of(-1.0) }},
		{"running jobs negative", func(m *HeartbeatMetrics) { m.RunningJobs = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := *req.Metrics
			tc.mutate(&m)
			err := (&AgentHeartbeatRequest{NodeID: "node-1", Metrics: &m}).Validate()
			must.Error(t, err)
			must.True(t, IsErrValidation(err))
		})
	}
}

func TestHeartbeatMetrics_UnmarshalKeepsExtra(t *testing.T) {
	ci.Parallel(t)

	raw := `{"cpu_percent": 42.5, "ram_percent": 10, "gpu_temp_c": 66, "fan_rpm": 1200}`

	var m HeartbeatMetrics
	must.NoError(t, json.Unmarshal([]byte(raw), &m))
	must.Eq(t, 42.5, m.CPUPercent)
	must.Eq(t, 10.0, m.RAMPercent)

	// The full submission, typed fields included, lands in Extra.
	must.Eq(t, 66.0, m.Extra["gpu_temp_c"])
	must.Eq(t, 1200.0, m.Extra["fan_rpm"])
	must.Eq(t, 42.5, m.Extra["cpu_percent"])
}

func TestHeartbeatMetrics_ToNodeMetrics(t *testing.T) {
	ci.Parallel(t)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	m := &HeartbeatMetrics{
		CPUPercent:  10,
		RAMUsedGB:   4,
		RAMPercent:  25,
		GPUPercent:  pointer.Of(7.0),
		RunningJobs: 3,
		Extra:       map[string]any{"k": "v"},
	}

	nm := m.ToNodeMetrics(ts)
	must.True(t, nm.HeartbeatTS.Equal(ts))
	must.Eq(t, "UTC", nm.HeartbeatTS.Location().String())
	must.Eq(t, 10.0, nm.CPUPercent)
	must.Eq(t, 3, nm.RunningJobs)
	must.Eq(t, "v", nm.Extra["k"])
}

func TestNodePolicyRequest_Validate(t *testing.T) {
	ci.Parallel(t)

	must.NoError(t, (&NodePolicyRequest{}).Validate())
	must.NoError(t, (&NodePolicyRequest{CPUCapPercent: pointer.Of(0.0)}).Validate())
	must.NoError(t, (&NodePolicyRequest{CPUCapPercent: pointer.Of(100.0)}).Validate())

	must.Error(t, (&NodePolicyRequest{CPUCapPercent: pointer.Of(-1.0)}).Validate())
	must.Error(t, (&NodePolicyRequest{GPUCapPercent: pointer.Of(100.5)}).Validate())
	must.Error(t, (&NodePolicyRequest{RAMCapPercent: pointer.Of(200.0)}).Validate())
}

func TestNodePolicyRequest_Apply(t *testing.T) {
	ci.Parallel(t)

	base := DefaultNodePolicy()

	// Empty request changes nothing.
	got := (&NodePolicyRequest{}).Apply(base)
	must.Eq(t, base, got)

	role := RolePreferInference
	got = (&NodePolicyRequest{
		Enabled:        pointer.Of(false),
		CPUCapPercent:  pointer.Of(55.0),
		TaskAllowlist:  []TaskType{TaskTypeInference},
		RolePreference: &role,
	}).Apply(base)

	must.False(t, got.Enabled)
	must.Eq(t, 55.0, got.CPUCapPercent)
	must.Eq(t, 100.0, got.RAMCapPercent)
	must.Eq(t, []TaskType{TaskTypeInference}, got.TaskAllowlist)
	must.Eq(t, RolePreferInference, got.RolePreference)

	// The base is untouched.
	must.True(t, base.Enabled)
	must.Eq(t, 100.0, base.CPUCapPercent)

	// Applying onto a nil policy starts from defaults.
	got = (&NodePolicyRequest{RAMCapPercent: pointer.Of(30.0)}).Apply(nil)
	must.True(t, got.Enabled)
	must.Eq(t, 30.0, got.RAMCapPercent)
}

func TestJobCreateRequest_Validate(t *testing.T) {
	ci.Parallel(t)

	must.NoError(t, (&JobCreateRequest{TaskType: "embed"}).Validate())
	must.Error(t, (&JobCreateRequest{TaskType: "TRAINING"}).Validate())
	must.Error(t, (&JobCreateRequest{
		TaskType:   "INDEX",
		PayloadRef: pointer.Of(strings.Repeat("s3://", MaxPayloadRefLength)),
	}).Validate())
}

func TestJobStatusUpdateRequest_Validate(t *testing.T) {
	ci.Parallel(t)

	must.NoError(t, (&JobStatusUpdateRequest{Status: "running"}).Validate())
	must.Error(t, (&JobStatusUpdateRequest{Status: "PAUSED"}).Validate())
	must.Error(t, (&JobStatusUpdateRequest{
		Status: "FAILED",
		Error:  pointer.Of(strings.Repeat("e", MaxErrorLength+1)),
	}).Validate())
}

func TestLegacyAgentRegisterRequest(t *testing.T) {
	ci.Parallel(t)

	req := &LegacyAgentRegisterRequest{
		AgentID:      "pi-kitchen",
		Capabilities: []string{"embed", "index", "arm"},
		Metadata: &LegacyAgentMetadata{
			DisplayName: "Kitchen Pi",
			IP:          "192.168.1.40",
			Port:        9100,
		},
	}
	must.NoError(t, req.Validate())

	lifted := req.ToRegisterRequest()
	must.Eq(t, "pi-kitchen", lifted.NodeID)
	must.Eq(t, "Kitchen Pi", lifted.DisplayName)
	must.Eq(t, "192.168.1.40", lifted.IP)
	must.Eq(t, 9100, lifted.Port)
	must.Eq(t, []string{"embed", "index", "arm"}, lifted.Capabilities.Labels)

	must.Error(t, (&LegacyAgentRegisterRequest{}).Validate())
}

func TestNewAgentView(t *testing.T) {
	ci.Parallel(t)

	now := time.Now().UTC()
	node := &Node{
		NodeID:      "pi-kitchen",
		DisplayName: "Kitchen Pi",
		IP:          "192.168.1.40",
		Port:        9100,
		Status:      NodeStatusOnline,
		Capabilities: &NodeCapabilities{
			Labels: []string{"embed", "arm"},
		},
		Metrics: &NodeMetrics{
			Extra: map[string]any{"cpu_percent": 12.0},
		},
		LastSeen: &now,
	}

	view := NewAgentView(node, false)
	must.Eq(t, "pi-kitchen", view.AgentID)
	must.Eq(t, "online", view.Status)
	must.Eq(t, []string{"embed", "arm"}, view.Capabilities)
	must.Eq(t, "Kitchen Pi", view.Metadata["display_name"])
	must.Eq(t, 12.0, view.Metrics["cpu_percent"])
	must.False(t, view.IsStale)

	// A node without metrics still reports an empty metrics map, never
	// null.
	bare := &Node{NodeID: "n", Status: NodeStatusUnknown}
	view = NewAgentView(bare, true)
	must.NotNil(t, view.Metrics)
	must.Eq(t, "unknown", view.Status)
	must.True(t, view.IsStale)
}
