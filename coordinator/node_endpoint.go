// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/edgemesh/edgemesh/coordinator/structs"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// NodeListRequest handles GET /v1/nodes.
func (s *HTTPServer) NodeListRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	nodes, err := s.server.State().Nodes()
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []*structs.Node{}
	}
	return nodes, nil
}

// NodeSpecificRequest routes /v1/nodes/{id} and /v1/nodes/{id}/policy.
func (s *HTTPServer) NodeSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/v1/nodes/")
	if rest, found := strings.CutSuffix(path, "/policy"); found {
		return s.nodePolicyRequest(resp, req, rest)
	}
	if strings.Contains(path, "/") || path == "" {
		return nil, CodedError(http.StatusNotFound, "not found")
	}
	return s.nodeDetailRequest(resp, req, path)
}

// nodeDetailRequest handles GET /v1/nodes/{id}, optionally attaching recent
// metrics history via include_metrics_history and history_limit (1-500,
// default 20).
func (s *HTTPServer) nodeDetailRequest(resp http.ResponseWriter, req *http.Request, nodeID string) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	node, err := s.server.State().GetNode(nodeID)
	if err != nil {
		return nil, err
	}

	detail := &structs.NodeDetail{Node: node}

	query := req.URL.Query()
	if include, err := parseBool(query.Get("include_metrics_history")); err != nil {
		return nil, err
	} else if include {
		limit := defaultHistoryLimit
		if raw := query.Get("history_limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > maxHistoryLimit {
				return nil, structs.NewValidationError("history_limit must be 1-%d", maxHistoryLimit)
			}
		}
		history := s.server.History().Get(nodeID, limit)
		if history == nil {
			history = []*structs.NodeMetrics{}
		}
		detail.MetricsHistory = history
	}

	return detail, nil
}

// nodePolicyRequest handles PUT /v1/nodes/{id}/policy.
func (s *HTTPServer) nodePolicyRequest(resp http.ResponseWriter, req *http.Request, nodeID string) (interface{}, error) {
	if req.Method != http.MethodPut {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var payload structs.NodePolicyRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	node, err := s.server.State().GetNode(nodeID)
	if err != nil {
		return nil, err
	}

	updated, err := s.server.State().UpdateNodePolicy(nodeID, payload.Apply(node.Policy))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// parseBool is a lenient boolean query parser: empty means false.
func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, structs.NewValidationError("invalid boolean %q", raw)
	}
	return b, nil
}

// SimulateScheduleRequest handles POST /v1/simulate/schedule.
func (s *HTTPServer) SimulateScheduleRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var payload structs.SimulateScheduleRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}
	return s.server.SimulateSchedule(payload.TaskType)
}

// ClusterSummaryRequest handles GET /v1/cluster/summary.
func (s *HTTPServer) ClusterSummaryRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return s.server.ClusterSummary()
}

// MetricsRequest handles GET /v1/metrics, serving the in-memory telemetry
// sink's aggregated intervals.
func (s *HTTPServer) MetricsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return s.server.InmemSink().DisplayMetrics(resp, req)
}
