// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"net/http"

	"github.com/edgemesh/edgemesh/coordinator/structs"
)

// AgentRegisterRequest handles POST /v1/agent/register.
func (s *HTTPServer) AgentRegisterRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	if err := s.checkAgentSecret(req); err != nil {
		return nil, err
	}

	var payload structs.AgentRegisterRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}

	node, err := s.server.RegisterAgent(&payload)
	if err != nil {
		return nil, err
	}
	return withCode(http.StatusCreated, node), nil
}

// AgentHeartbeatRequest handles POST /v1/agent/heartbeat.
func (s *HTTPServer) AgentHeartbeatRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	if err := s.checkAgentSecret(req); err != nil {
		return nil, err
	}

	var payload structs.AgentHeartbeatRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}

	event, err := s.server.Heartbeat(&payload)
	if err != nil {
		return nil, err
	}
	return withCode(http.StatusAccepted, event), nil
}
