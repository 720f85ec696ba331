// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"net/http"
	"strconv"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/pointer"
)

const (
	defaultBurstCount = 20
	maxBurstCount     = 200
)

// DemoEmbedBurstRequest handles POST /v1/demo/jobs/create-embed-burst. It
// seeds count EMBEDDINGS jobs in a mixed-status spread so dashboards have
// something to show: assigned jobs cycle through completed, failed, and
// running buckets; unassigned ones stay queued.
func (s *HTTPServer) DemoEmbedBurstRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	count := defaultBurstCount
	if raw := req.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxBurstCount {
			return nil, structs.NewValidationError("count must be 1-%d", maxBurstCount)
		}
		count = parsed
	}

	jobs := make([]*structs.Job, 0, count)
	for i := 1; i <= count; i++ {
		job, err := s.server.CreateJob(&structs.JobCreateRequest{
			TaskType:   string(structs.TaskTypeEmbeddings),
			PayloadRef: pointer.Of("demo://embed-burst"),
		})
		if err != nil {
			return nil, err
		}

		if job.AssignedNodeID != nil {
			switch {
			case i%5 == 0:
				if job, err = s.advanceDemoJob(job.ID, structs.JobStatusRunning, structs.JobStatusCompleted); err != nil {
					return nil, err
				}
			case i%7 == 0:
				if job, err = s.advanceDemoJob(job.ID, structs.JobStatusRunning, structs.JobStatusFailed); err != nil {
					return nil, err
				}
			case i%2 == 0:
				if job, err = s.advanceDemoJob(job.ID, structs.JobStatusRunning); err != nil {
					return nil, err
				}
			}
		}
		jobs = append(jobs, job)
	}

	return withCode(http.StatusCreated, map[string]interface{}{
		"created": len(jobs),
		"jobs":    jobs,
	}), nil
}

func (s *HTTPServer) advanceDemoJob(jobID string, statuses ...structs.JobStatus) (*structs.Job, error) {
	var job *structs.Job
	var err error
	for _, status := range statuses {
		job, err = s.server.State().TransitionJobStatus(jobID, status, nil)
		if err != nil {
			return nil, err
		}
	}
	return job, nil
}
