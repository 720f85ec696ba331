// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"net/http"
	"strings"

	"github.com/edgemesh/edgemesh/coordinator/structs"
)

// JobsRequest routes POST (create) and GET (list) on /v1/jobs.
func (s *HTTPServer) JobsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodPost:
		return s.jobCreateRequest(resp, req)
	case http.MethodGet:
		return s.jobListRequest(resp, req)
	default:
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
}

func (s *HTTPServer) jobCreateRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var payload structs.JobCreateRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}

	job, err := s.server.CreateJob(&payload)
	if err != nil {
		return nil, err
	}
	return withCode(http.StatusCreated, job), nil
}

// jobListRequest handles GET /v1/jobs with optional status, task_type, and
// node_id filters. Unknown filter values are a 422, not an empty list.
func (s *HTTPServer) jobListRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	query := req.URL.Query()

	var filter structs.JobListFilter
	if raw := query.Get("status"); raw != "" {
		status, err := structs.ParseJobStatus(raw)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if raw := query.Get("task_type"); raw != "" {
		taskType, err := structs.ParseTaskType(raw)
		if err != nil {
			return nil, err
		}
		filter.TaskType = &taskType
	}
	if raw := query.Get("node_id"); raw != "" {
		filter.NodeID = &raw
	}

	jobs, err := s.server.State().ListJobs(filter)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*structs.Job{}
	}
	return jobs, nil
}

// JobSpecificRequest routes /v1/jobs/{id} and /v1/jobs/{id}/status.
func (s *HTTPServer) JobSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/v1/jobs/")
	if rest, found := strings.CutSuffix(path, "/status"); found {
		return s.jobStatusRequest(resp, req, rest)
	}
	if strings.Contains(path, "/") || path == "" {
		return nil, CodedError(http.StatusNotFound, "not found")
	}
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}
	return s.server.State().GetJob(path)
}

// jobStatusRequest handles POST /v1/jobs/{id}/status.
func (s *HTTPServer) jobStatusRequest(resp http.ResponseWriter, req *http.Request, jobID string) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var payload structs.JobStatusUpdateRequest
	if err := decodeBody(req, &payload); err != nil {
		return nil, err
	}
	return s.server.TransitionJob(jobID, &payload)
}
