// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package state implements the coordinator's source of truth for nodes and
// jobs. Reads are served from a go-memdb snapshot; every write also lands in
// a bbolt bucket before the in-memory transaction commits, so a restart
// replays the buckets and resumes where it left off.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/hashicorp/go-hclog"
	memdb "github.com/hashicorp/go-memdb"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes = []byte("nodes")
	bucketJobs  = []byte("jobs")
)

// StateStore owns all persisted coordinator state. Every exported operation
// is an atomic single-record transaction: concurrent writers serialize on
// the write lock and readers only ever observe committed snapshots.
type StateStore struct {
	logger hclog.Logger
	db     *memdb.MemDB

	// durable is nil when the store runs purely in memory (tests).
	durable *bolt.DB

	// writeLock serializes all mutations. "Later" for conflicting writes
	// to the same record is defined by arrival order at this lock.
	writeLock sync.Mutex
}

// Open creates a state store backed by the bolt file at path, replaying any
// existing records into the in-memory index. An empty path yields a
// memory-only store.
func Open(path string, logger hclog.Logger) (*StateStore, error) {
	db, err := memdb.NewMemDB(stateStoreSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create state schema: %w", err)
	}

	s := &StateStore{
		logger: logger.Named("state"),
		db:     db,
	}

	if path == "" {
		return s, nil
	}

	durable, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %q: %w", path, err)
	}
	s.durable = durable

	if err := durable.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNodes, bucketJobs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		durable.Close()
		return nil, fmt.Errorf("failed to create state buckets: %w", err)
	}

	if err := s.restore(); err != nil {
		durable.Close()
		return nil, err
	}
	return s, nil
}

// restore replays the durable buckets into memdb. Stored timestamps are
// normalized to UTC on the way in.
func (s *StateStore) restore() error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	var nodes, jobs int
	err := s.durable.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			node := &structs.Node{}
			if err := json.Unmarshal(v, node); err != nil {
				return fmt.Errorf("failed to decode node record: %w", err)
			}
			normalizeNodeTimes(node)
			nodes++
			return txn.Insert(tableNodes, node)
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			job := &structs.Job{}
			if err := json.Unmarshal(v, job); err != nil {
				return fmt.Errorf("failed to decode job record: %w", err)
			}
			normalizeJobTimes(job)
			jobs++
			return txn.Insert(tableJobs, job)
		})
	})
	if err != nil {
		return err
	}

	txn.Commit()
	s.logger.Info("restored state", "nodes", nodes, "jobs", jobs)
	return nil
}

// Close releases the durable handle. The in-memory index stays readable.
func (s *StateStore) Close() error {
	if s.durable == nil {
		return nil
	}
	return s.durable.Close()
}

func normalizeNodeTimes(n *structs.Node) {
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	if n.LastSeen != nil {
		utc := n.LastSeen.UTC()
		n.LastSeen = &utc
	}
	if n.Metrics != nil {
		n.Metrics.HeartbeatTS = n.Metrics.HeartbeatTS.UTC()
	}
}

func normalizeJobTimes(j *structs.Job) {
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if j.StartedAt != nil {
		utc := j.StartedAt.UTC()
		j.StartedAt = &utc
	}
	if j.CompletedAt != nil {
		utc := j.CompletedAt.UTC()
		j.CompletedAt = &utc
	}
}

// persistNode writes the node's compact JSON encoding into the nodes
// bucket. Called under the write lock, before the memdb txn commits.
func (s *StateStore) persistNode(node *structs.Node) error {
	if s.durable == nil {
		return nil
	}
	blob, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to encode node %q: %w", node.NodeID, err)
	}
	return s.durable.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Put([]byte(node.NodeID), blob)
	})
}

func (s *StateStore) persistJob(job *structs.Job) error {
	if s.durable == nil {
		return nil
	}
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %q: %w", job.ID, err)
	}
	return s.durable.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Put([]byte(job.ID), blob)
	})
}

// getNodeTxn fetches a node within an open transaction without copying.
func getNodeTxn(txn *memdb.Txn, nodeID string) (*structs.Node, error) {
	raw, err := txn.First(tableNodes, "id", nodeID)
	if err != nil {
		return nil, fmt.Errorf("node lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*structs.Node), nil
}

// ensureNodeTxn returns a mutable copy of the node, auto-creating a record
// with defaults when the id is unknown. New nodes start UNKNOWN with the
// node id doubling as display name until a register arrives.
func ensureNodeTxn(txn *memdb.Txn, nodeID string, now time.Time) (*structs.Node, error) {
	existing, err := getNodeTxn(txn, nodeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing.Copy(), nil
	}
	return &structs.Node{
		NodeID:       nodeID,
		DisplayName:  nodeID,
		IP:           "0.0.0.0",
		Port:         0,
		Status:       structs.NodeStatusUnknown,
		Capabilities: structs.DefaultNodeCapabilities(),
		Policy:       structs.DefaultNodePolicy(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// commitNode inserts the node into the open txn, persists it durably, and
// commits. The txn is aborted on any failure.
func (s *StateStore) commitNode(txn *memdb.Txn, node *structs.Node) error {
	if err := txn.Insert(tableNodes, node); err != nil {
		return fmt.Errorf("failed to index node %q: %w", node.NodeID, err)
	}
	if err := s.persistNode(node); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *StateStore) commitJob(txn *memdb.Txn, job *structs.Job) error {
	if err := txn.Insert(tableJobs, job); err != nil {
		return fmt.Errorf("failed to index job %q: %w", job.ID, err)
	}
	if err := s.persistJob(job); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// UpsertNodeIdentity inserts or updates a node's identity fields, leaving
// capabilities, metrics, policy, status, and last_seen untouched.
func (s *StateStore) UpsertNodeIdentity(nodeID, displayName, ip string, port int) (*structs.Node, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	node, err := ensureNodeTxn(txn, nodeID, now)
	if err != nil {
		return nil, err
	}
	if displayName != "" {
		node.DisplayName = displayName
	}
	if ip != "" {
		node.IP = ip
	}
	node.Port = port
	node.UpdatedAt = now

	if err := s.commitNode(txn, node); err != nil {
		return nil, err
	}
	return node.Copy(), nil
}

// UpsertNodeCapabilities replaces the node's capabilities blob, creating the
// node with defaults when missing.
func (s *StateStore) UpsertNodeCapabilities(nodeID string, caps *structs.NodeCapabilities) (*structs.Node, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	node, err := ensureNodeTxn(txn, nodeID, now)
	if err != nil {
		return nil, err
	}
	node.Capabilities = caps.Copy()
	node.UpdatedAt = now

	if err := s.commitNode(txn, node); err != nil {
		return nil, err
	}
	return node.Copy(), nil
}

// UpdateNodeMetrics replaces the node's metrics, forces ONLINE, and tracks
// the heartbeat timestamp as last_seen. This is one of the two paths that
// may flip a node out of OFFLINE or UNKNOWN.
func (s *StateStore) UpdateNodeMetrics(nodeID string, metrics *structs.NodeMetrics) (*structs.Node, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	node, err := ensureNodeTxn(txn, nodeID, now)
	if err != nil {
		return nil, err
	}

	m := metrics.Copy()
	if m.HeartbeatTS.IsZero() {
		m.HeartbeatTS = now
	}
	m.HeartbeatTS = m.HeartbeatTS.UTC()

	node.Metrics = m
	node.Status = structs.NodeStatusOnline
	lastSeen := m.HeartbeatTS
	node.LastSeen = &lastSeen
	node.UpdatedAt = now

	if err := s.commitNode(txn, node); err != nil {
		return nil, err
	}
	return node.Copy(), nil
}

// UpdateNodePolicy replaces the node's policy. Cap percents outside [0,100]
// reject the update; unknown nodes are not auto-created here, operators can
// only set policy on registered nodes.
func (s *StateStore) UpdateNodePolicy(nodeID string, policy *structs.NodePolicy) (*structs.Node, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := getNodeTxn(txn, nodeID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, structs.ErrNodeNotFound
	}

	node := existing.Copy()
	node.Policy = policy.Copy()
	node.UpdatedAt = now

	if err := s.commitNode(txn, node); err != nil {
		return nil, err
	}
	return node.Copy(), nil
}

func validatePolicy(p *structs.NodePolicy) error {
	if p == nil {
		return structs.NewValidationError("policy is required")
	}
	check := func(name string, v float64) error {
		if v < 0 || v > 100 {
			return structs.NewValidationError("%s %.3f outside 0-100", name, v)
		}
		return nil
	}
	if err := check("cpu_cap_percent", p.CPUCapPercent); err != nil {
		return err
	}
	if err := check("ram_cap_percent", p.RAMCapPercent); err != nil {
		return err
	}
	if p.GPUCapPercent != nil {
		if err := check("gpu_cap_percent", *p.GPUCapPercent); err != nil {
			return err
		}
	}
	return nil
}

// GetNode returns a copy of the node, or ErrNodeNotFound.
func (s *StateStore) GetNode(nodeID string) (*structs.Node, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	node, err := getNodeTxn(txn, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, structs.ErrNodeNotFound
	}
	return node.Copy(), nil
}

// Nodes returns copies of every node ordered by node id ascending.
func (s *StateStore) Nodes() ([]*structs.Node, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tableNodes, "id")
	if err != nil {
		return nil, fmt.Errorf("node iteration failed: %w", err)
	}

	var out []*structs.Node
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Node).Copy())
	}
	return out, nil
}

// MarkOfflineIfStale demotes every node whose last heartbeat is older than
// the stale window and returns the nodes it changed. Nodes that never
// heartbeated keep their UNKNOWN status, absence of metrics is not the same
// signal as silence after metrics.
func (s *StateStore) MarkOfflineIfStale(stale time.Duration) ([]*structs.Node, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-stale)

	txn := s.db.Txn(true)
	defer txn.Abort()

	iter, err := txn.Get(tableNodes, "id")
	if err != nil {
		return nil, fmt.Errorf("node iteration failed: %w", err)
	}

	var changed []*structs.Node
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		node := raw.(*structs.Node)
		if node.Status == structs.NodeStatusOffline || node.LastSeen == nil {
			continue
		}
		if !node.LastSeen.Before(cutoff) {
			continue
		}

		demoted := node.Copy()
		demoted.Status = structs.NodeStatusOffline
		demoted.UpdatedAt = now
		if err := txn.Insert(tableNodes, demoted); err != nil {
			return nil, fmt.Errorf("failed to index node %q: %w", demoted.NodeID, err)
		}
		if err := s.persistNode(demoted); err != nil {
			return nil, err
		}
		changed = append(changed, demoted.Copy())
	}

	txn.Commit()
	return changed, nil
}

// CreateJob persists a new job record. The caller supplies the id; status
// defaults to QUEUED.
func (s *StateStore) CreateJob(job *structs.Job) (*structs.Job, error) {
	if strings.TrimSpace(job.ID) == "" {
		return nil, structs.NewValidationError("job id is required")
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableJobs, "id", job.ID)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if existing != nil {
		return nil, structs.NewValidationError("job %q already exists", job.ID)
	}

	j := job.Copy()
	if j.Status == "" {
		j.Status = structs.JobStatusQueued
	}
	j.CreatedAt = now
	j.UpdatedAt = now

	if err := s.commitJob(txn, j); err != nil {
		return nil, err
	}
	return j.Copy(), nil
}

// GetJob returns a copy of the job, or ErrJobNotFound.
func (s *StateStore) GetJob(jobID string) (*structs.Job, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableJobs, "id", jobID)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if raw == nil {
		return nil, structs.ErrJobNotFound
	}
	return raw.(*structs.Job).Copy(), nil
}

// ListJobs returns copies of jobs matching the filter, ordered by created_at
// descending then id ascending.
func (s *StateStore) ListJobs(filter structs.JobListFilter) ([]*structs.Job, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	var iter memdb.ResultIterator
	var err error
	switch {
	case filter.Status != nil:
		iter, err = txn.Get(tableJobs, "status", string(*filter.Status))
	case filter.TaskType != nil:
		iter, err = txn.Get(tableJobs, "type", string(*filter.TaskType))
	default:
		iter, err = txn.Get(tableJobs, "id")
	}
	if err != nil {
		return nil, fmt.Errorf("job iteration failed: %w", err)
	}

	var out []*structs.Job
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		job := raw.(*structs.Job)
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.TaskType != nil && job.Type != *filter.TaskType {
			continue
		}
		if filter.NodeID != nil {
			if job.AssignedNodeID == nil || *job.AssignedNodeID != *filter.NodeID {
				continue
			}
		}
		out = append(out, job.Copy())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AssignJob sets or clears the job's assigned node.
func (s *StateStore) AssignJob(jobID string, nodeID *string) (*structs.Job, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableJobs, "id", jobID)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if raw == nil {
		return nil, structs.ErrJobNotFound
	}

	job := raw.(*structs.Job).Copy()
	if nodeID == nil {
		job.AssignedNodeID = nil
	} else {
		assigned := *nodeID
		job.AssignedNodeID = &assigned
	}
	job.UpdatedAt = now

	if err := s.commitJob(txn, job); err != nil {
		return nil, err
	}
	return job.Copy(), nil
}

// TransitionJobStatus applies the job status state machine:
//
//   - self-transitions are no-ops that may refresh the error text
//   - entering RUNNING increments attempts, sets started_at once, and
//     clears any previous error
//   - entering COMPLETED or FAILED stamps completed_at; FAILED keeps the
//     supplied or existing error, defaulting to "Job failed"
//   - terminal states admit nothing further
//
// Illegal transitions return ErrInvalidTransition.
func (s *StateStore) TransitionJobStatus(jobID string, newStatus structs.JobStatus, errorMsg *string) (*structs.Job, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	now := time.Now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableJobs, "id", jobID)
	if err != nil {
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if raw == nil {
		return nil, structs.ErrJobNotFound
	}

	job := raw.(*structs.Job).Copy()

	if job.Status == newStatus {
		if errorMsg != nil {
			msg := *errorMsg
			job.Error = &msg
			job.UpdatedAt = now
			if err := s.commitJob(txn, job); err != nil {
				return nil, err
			}
		}
		return job.Copy(), nil
	}

	if !job.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", structs.ErrInvalidTransition, job.Status, newStatus)
	}

	job.Status = newStatus
	job.UpdatedAt = now

	switch newStatus {
	case structs.JobStatusRunning:
		job.Attempts++
		if job.StartedAt == nil {
			started := now
			job.StartedAt = &started
		}
		job.Error = nil
	case structs.JobStatusCompleted:
		completed := now
		job.CompletedAt = &completed
		job.Error = nil
	case structs.JobStatusFailed:
		completed := now
		job.CompletedAt = &completed
		switch {
		case errorMsg != nil:
			msg := *errorMsg
			job.Error = &msg
		case job.Error == nil:
			msg := structs.DefaultErrorOnFailure
			job.Error = &msg
		}
	case structs.JobStatusCancelled:
		completed := now
		job.CompletedAt = &completed
		if errorMsg != nil {
			msg := *errorMsg
			job.Error = &msg
		}
	}

	if err := s.commitJob(txn, job); err != nil {
		return nil, err
	}
	return job.Copy(), nil
}
