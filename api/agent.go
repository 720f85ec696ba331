// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package api

import (
	"github.com/edgemesh/edgemesh/coordinator/structs"
)

// AgentAPI wraps the agent ingest endpoints.
type AgentAPI struct {
	client *Client
}

// Agent returns a handle on the agent endpoints.
func (c *Client) Agent() *AgentAPI {
	return &AgentAPI{client: c}
}

// Register submits a registration and returns the coordinator's view of the
// node.
func (a *AgentAPI) Register(req *structs.AgentRegisterRequest) (*structs.Node, error) {
	var node structs.Node
	if err := a.client.post("/v1/agent/register", req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Heartbeat submits a metrics sample and returns the resulting node update
// event.
func (a *AgentAPI) Heartbeat(req *structs.AgentHeartbeatRequest) (*structs.NodeUpdateEvent, error) {
	var event structs.NodeUpdateEvent
	if err := a.client.post("/v1/agent/heartbeat", req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
