// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// Legacy v0 agent API shapes. Agents that predate /v1 register with a flat
// label list as "capabilities" and push free-form metrics maps. The
// coordinator maps both onto the current node model.

// LegacyAgentRegisterRequest is the POST /api/agents/register payload.
type LegacyAgentRegisterRequest struct {
	AgentID      string               `json:"agent_id"`
	Capabilities []string             `json:"capabilities"`
	Metadata     *LegacyAgentMetadata `json:"metadata"`
}

// LegacyAgentMetadata carries the identity fields of a v0 registration.
type LegacyAgentMetadata struct {
	DisplayName string `json:"display_name"`
	IP          string `json:"ip"`
	Port        int    `json:"port"`
}

func (r *LegacyAgentRegisterRequest) Validate() error {
	var mErr multierror.Error
	if strings.TrimSpace(r.AgentID) == "" {
		mErr.Errors = append(mErr.Errors, NewValidationError("agent_id is required"))
	}
	if len(r.AgentID) > MaxNodeIDLength {
		mErr.Errors = append(mErr.Errors, NewValidationError("agent_id exceeds %d characters", MaxNodeIDLength))
	}
	if r.Metadata != nil && (r.Metadata.Port < 0 || r.Metadata.Port > 65535) {
		mErr.Errors = append(mErr.Errors, NewValidationError("port %d outside 0-65535", r.Metadata.Port))
	}
	return mErr.ErrorOrNil()
}

// ToRegisterRequest lifts a v0 registration into the current shape. The
// label list doubles as both labels and the task type hint.
func (r *LegacyAgentRegisterRequest) ToRegisterRequest() *AgentRegisterRequest {
	req := &AgentRegisterRequest{
		NodeID: r.AgentID,
		Capabilities: &RegisterCapabilities{
			Labels: append([]string(nil), r.Capabilities...),
		},
	}
	if r.Metadata != nil {
		req.DisplayName = r.Metadata.DisplayName
		req.IP = r.Metadata.IP
		req.Port = r.Metadata.Port
	}
	return req
}

// LegacyHeartbeatRequest is the POST /api/agents/{id}/heartbeat payload.
// Status is accepted and ignored; liveness is derived from the heartbeat
// itself.
type LegacyHeartbeatRequest struct {
	Status  string            `json:"status"`
	Metrics *HeartbeatMetrics `json:"metrics"`
}

// AgentView is the GET /api/agents response element, preserving the v0
// field names and lowercase status.
type AgentView struct {
	AgentID      string         `json:"agent_id"`
	Capabilities []string       `json:"capabilities"`
	Metadata     map[string]any `json:"metadata"`
	Status       string         `json:"status"`
	Metrics      map[string]any `json:"metrics"`
	LastSeen     *time.Time     `json:"last_seen"`
	IsStale      bool           `json:"is_stale"`
}

// NewAgentView projects a node onto the v0 agent shape. stale reflects the
// caller's staleness window at read time.
func NewAgentView(node *Node, stale bool) *AgentView {
	view := &AgentView{
		AgentID:  node.NodeID,
		Status:   strings.ToLower(string(node.Status)),
		LastSeen: node.LastSeen,
		IsStale:  stale,
		Metadata: map[string]any{
			"display_name": node.DisplayName,
			"ip":           node.IP,
			"port":         node.Port,
		},
	}
	if node.Capabilities != nil {
		view.Capabilities = append([]string(nil), node.Capabilities.Labels...)
	}
	if node.Metrics != nil && node.Metrics.Extra != nil {
		view.Metrics = node.Metrics.Extra
	} else {
		view.Metrics = map[string]any{}
	}
	return view
}
