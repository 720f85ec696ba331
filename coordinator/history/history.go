// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package history keeps a bounded in-memory window of recent metrics samples
// per node. It is derived data: losing it on restart is fine, the store
// still has the latest sample.
package history

import (
	"sync"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMaxSamples is the ring depth per node.
	DefaultMaxSamples = 256

	// DefaultMaxNodes caps how many node rings are held at once. Rings
	// for the least recently heartbeating nodes are evicted first, so
	// total memory stays bounded even when node ids churn.
	DefaultMaxNodes = 1024
)

// ring is a fixed-capacity FIFO of metrics samples.
type ring struct {
	samples []*structs.NodeMetrics
	head    int
	count   int
}

func (r *ring) push(m *structs.NodeMetrics) {
	if r.count < len(r.samples) {
		r.samples[(r.head+r.count)%len(r.samples)] = m
		r.count++
		return
	}
	// Full: overwrite the oldest slot.
	r.samples[r.head] = m
	r.head = (r.head + 1) % len(r.samples)
}

// last returns up to n of the most recent samples, oldest first.
func (r *ring) last(n int) []*structs.NodeMetrics {
	if n > r.count {
		n = r.count
	}
	out := make([]*structs.NodeMetrics, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.samples[(r.head+i)%len(r.samples)])
	}
	return out
}

// MetricsHistory owns the per-node rings. All access is mutex-guarded;
// readers get copies, never a live view.
type MetricsHistory struct {
	mu         sync.Mutex
	rings      *lru.Cache[string, *ring]
	maxSamples int
}

// New returns a history buffer holding maxSamples samples for up to maxNodes
// nodes. Non-positive arguments select the defaults.
func New(maxSamples, maxNodes int) (*MetricsHistory, error) {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	rings, err := lru.New[string, *ring](maxNodes)
	if err != nil {
		return nil, err
	}
	return &MetricsHistory{
		rings:      rings,
		maxSamples: maxSamples,
	}, nil
}

// Append records a copy of the sample for the node, evicting the node's
// oldest sample once the ring is full.
func (h *MetricsHistory) Append(nodeID string, m *structs.NodeMetrics) {
	if m == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings.Get(nodeID)
	if !ok {
		r = &ring{samples: make([]*structs.NodeMetrics, h.maxSamples)}
		h.rings.Add(nodeID, r)
	}
	r.push(m.Copy())
}

// Get returns up to limit of the node's most recent samples, oldest first.
// The result is a snapshot of copies.
func (h *MetricsHistory) Get(nodeID string, limit int) []*structs.NodeMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings.Get(nodeID)
	if !ok || limit <= 0 {
		return nil
	}
	recent := r.last(limit)
	out := make([]*structs.NodeMetrics, len(recent))
	for i, m := range recent {
		out[i] = m.Copy()
	}
	return out
}

// Forget drops a node's ring entirely.
func (h *MetricsHistory) Forget(nodeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rings.Remove(nodeID)
}
