// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package api

import (
	"net/url"

	"github.com/edgemesh/edgemesh/coordinator/structs"
)

// JobsAPI wraps the job lifecycle endpoints.
type JobsAPI struct {
	client *Client
}

// Jobs returns a handle on the job endpoints.
func (c *Client) Jobs() *JobsAPI {
	return &JobsAPI{client: c}
}

// Create submits a new job and returns it with its scheduler assignment.
func (j *JobsAPI) Create(req *structs.JobCreateRequest) (*structs.Job, error) {
	var job structs.Job
	if err := j.client.post("/v1/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobListOptions filter a List call. Empty fields match everything.
type JobListOptions struct {
	Status   string
	TaskType string
	NodeID   string
}

// List returns jobs matching the options, newest first.
func (j *JobsAPI) List(opts *JobListOptions) ([]*structs.Job, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			query.Set("status", opts.Status)
		}
		if opts.TaskType != "" {
			query.Set("task_type", opts.TaskType)
		}
		if opts.NodeID != "" {
			query.Set("node_id", opts.NodeID)
		}
	}

	var jobs []*structs.Job
	if err := j.client.get("/v1/jobs", query, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Info returns one job.
func (j *JobsAPI) Info(jobID string) (*structs.Job, error) {
	if jobID == "" {
		return nil, errMissingID
	}
	var job structs.Job
	if err := j.client.get("/v1/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SetStatus drives the job's status state machine. errMsg is optional and
// only meaningful on FAILED.
func (j *JobsAPI) SetStatus(jobID, status string, errMsg *string) (*structs.Job, error) {
	if jobID == "" {
		return nil, errMissingID
	}
	req := &structs.JobStatusUpdateRequest{Status: status, Error: errMsg}
	var job structs.Job
	if err := j.client.post("/v1/jobs/"+url.PathEscape(jobID)+"/status", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
