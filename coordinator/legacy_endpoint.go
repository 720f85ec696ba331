// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"net/http"
	"strings"
	"time"

	"github.com/edgemesh/edgemesh/coordinator/structs"
)

// LegacyAgentRegisterRequest handles POST /api/agents/register, the v0
// registration surface.
func (s *HTTPServer) LegacyAgentRegisterRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	if err := s.checkAgentSecret(req); err != nil {
		return nil, err
	}

	var payload structs.LegacyAgentRegisterRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.server.RegisterAgent(payload.ToRegisterRequest()); err != nil {
		return nil, err
	}
	return withCode(http.StatusCreated, map[string]bool{"ok": true}), nil
}

// LegacyAgentSpecificRequest routes /api/agents/{id}/heartbeat.
func (s *HTTPServer) LegacyAgentSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/api/agents/")
	agentID, found := strings.CutSuffix(path, "/heartbeat")
	if !found || agentID == "" || strings.Contains(agentID, "/") {
		return nil, CodedError(http.StatusNotFound, "not found")
	}
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	if err := s.checkAgentSecret(req); err != nil {
		return nil, err
	}

	var payload structs.LegacyHeartbeatRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}
	metrics := payload.Metrics
	if metrics == nil {
		metrics = &structs.HeartbeatMetrics{}
	}

	if _, err := s.server.Heartbeat(&structs.AgentHeartbeatRequest{
		NodeID:  agentID,
		Metrics: metrics,
	}); err != nil {
		return nil, err
	}
	return withCode(http.StatusAccepted, map[string]bool{"ok": true}), nil
}

// LegacyAgentListRequest handles GET /api/agents. The v0 surface ran a
// stale sweep inline before every read instead of relying on the background
// monitor; that behavior is preserved so is_stale and status agree.
func (s *HTTPServer) LegacyAgentListRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	staleWindow := s.server.Config().NodeStale
	if _, err := s.server.State().MarkOfflineIfStale(staleWindow); err != nil {
		return nil, err
	}

	nodes, err := s.server.State().Nodes()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-staleWindow)
	views := make([]*structs.AgentView, 0, len(nodes))
	for _, node := range nodes {
		stale := node.LastSeen == nil || node.LastSeen.Before(cutoff)
		views = append(views, structs.NewAgentView(node, stale))
	}
	return views, nil
}
