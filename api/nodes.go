// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package api

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/edgemesh/edgemesh/coordinator/structs"
)

// NodesAPI wraps the node registry endpoints.
type NodesAPI struct {
	client *Client
}

// Nodes returns a handle on the node endpoints.
func (c *Client) Nodes() *NodesAPI {
	return &NodesAPI{client: c}
}

// List returns every known node ordered by node id.
func (n *NodesAPI) List() ([]*structs.Node, error) {
	var nodes []*structs.Node
	if err := n.client.get("/v1/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Info returns one node, optionally with up to historyLimit recent metrics
// samples.
func (n *NodesAPI) Info(nodeID string, includeHistory bool, historyLimit int) (*structs.NodeDetail, error) {
	query := url.Values{}
	if includeHistory {
		query.Set("include_metrics_history", "true")
		if historyLimit > 0 {
			query.Set("history_limit", strconv.Itoa(historyLimit))
		}
	}

	var detail structs.NodeDetail
	if err := n.client.get("/v1/nodes/"+url.PathEscape(nodeID), query, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdatePolicy replaces fields of the node's scheduling policy.
func (n *NodesAPI) UpdatePolicy(nodeID string, req *structs.NodePolicyRequest) (*structs.Node, error) {
	var node structs.Node
	if err := n.client.put("/v1/nodes/"+url.PathEscape(nodeID)+"/policy", req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// SimulateSchedule asks the coordinator to rank the fleet for a task type
// without creating a job.
func (n *NodesAPI) SimulateSchedule(taskType string) (map[string]interface{}, error) {
	var out map[string]interface{}
	req := &structs.SimulateScheduleRequest{TaskType: taskType}
	if err := n.client.post("/v1/simulate/schedule", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClusterSummary returns fleet-wide capacity aggregates.
func (n *NodesAPI) ClusterSummary() (*structs.ClusterSummary, error) {
	var summary structs.ClusterSummary
	if err := n.client.get("/v1/cluster/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// IsNotFound reports whether the error is a 404 from the coordinator.
func IsNotFound(err error) bool {
	return IsStatus(err, 404)
}

// IsConflict reports whether the error is a 409 from the coordinator.
func IsConflict(err error) bool {
	return IsStatus(err, 409)
}

// errMissingID guards path construction from empty identifiers.
var errMissingID = fmt.Errorf("missing identifier")
