// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package scheduler ranks nodes for task placement. Everything here is a
// pure function of node state: no I/O, no clock, no suspension. The
// coordinator feeds it store snapshots and persists whatever it picks.
package scheduler

import (
	"math"
	"sort"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/hashicorp/go-set/v3"
)

// Ineligibility reasons, reported per node by EvaluateNodeEligibility.
const (
	ReasonPolicyDisabled = "policy_disabled"
	ReasonNodeNotOnline  = "node_not_online"
	ReasonTaskNotAllowed = "task_not_allowed"
	ReasonCPUOverCap     = "cpu_over_cap"
	ReasonRAMOverCap     = "ram_over_cap"
	ReasonGPURequired    = "gpu_required"
	ReasonGPUOverCap     = "gpu_over_cap"
)

// Scoring weights. These are authoritative; changing them changes placement
// behavior for every fleet.
const (
	weightCPUHeadroom         = 45.0
	weightRAMHeadroom         = 35.0
	weightGPUHeadroom         = 20.0
	weightInferGPUBonus       = 22.0
	weightCPUTaskCPUNodeBonus = 12.0
	weightRoleMatchBonus      = 14.0
	weightRoleMismatchPenalty = 10.0
	weightRunningJobsPenalty  = 2.0
)

// EvaluateNodeEligibility collects every reason the node cannot take the
// task. The node is eligible iff the reason list is empty; reasons are
// evaluated independently so operators see the full picture, not just the
// first failure.
func EvaluateNodeEligibility(node *structs.Node, task structs.TaskType) (bool, []string) {
	reasons := []string{}

	policy := node.Policy
	if policy == nil {
		policy = structs.DefaultNodePolicy()
	}

	if !policy.Enabled {
		reasons = append(reasons, ReasonPolicyDisabled)
	}
	if node.Status != structs.NodeStatusOnline {
		reasons = append(reasons, ReasonNodeNotOnline)
	}

	allowlist := set.From(policy.TaskAllowlist)
	if !allowlist.Contains(task) {
		reasons = append(reasons, ReasonTaskNotAllowed)
	}

	metrics := node.Metrics
	if metrics == nil {
		metrics = &structs.NodeMetrics{}
	}

	if metrics.CPUPercent > policy.CPUCapPercent {
		reasons = append(reasons, ReasonCPUOverCap)
	}
	if metrics.RAMPercent > policy.RAMCapPercent {
		reasons = append(reasons, ReasonRAMOverCap)
	}

	if task.RequiresGPU() {
		switch {
		case !node.HasGPU():
			reasons = append(reasons, ReasonGPURequired)
		case metrics.GPUPercent != nil && *metrics.GPUPercent > policy.EffectiveGPUCap():
			reasons = append(reasons, ReasonGPUOverCap)
		}
	}

	return len(reasons) == 0, reasons
}

// headroom maps a usage percent and a cap percent onto [0,1]: 1 when idle,
// 0 at double the cap. The cap floor of 1 keeps a zero cap from dividing
// away the term entirely.
func headroom(percent, cap float64) float64 {
	ratio := percent / math.Max(cap, 1)
	return math.Max(0, 1-math.Min(ratio, 2))
}

// ScoreNode computes the weighted placement score for the node and task,
// rounded to 3 decimals. The score is meaningful only relative to other
// nodes evaluated for the same task.
func ScoreNode(node *structs.Node, task structs.TaskType) float64 {
	policy := node.Policy
	if policy == nil {
		policy = structs.DefaultNodePolicy()
	}
	metrics := node.Metrics
	if metrics == nil {
		metrics = &structs.NodeMetrics{}
	}

	score := headroom(metrics.CPUPercent, policy.CPUCapPercent) * weightCPUHeadroom
	score += headroom(metrics.RAMPercent, policy.RAMCapPercent) * weightRAMHeadroom

	role := policy.RolePreference
	if role == "" {
		role = structs.RoleAuto
	}

	switch {
	case task.RequiresGPU():
		if node.HasGPU() {
			score += weightInferGPUBonus
		}
		if metrics.GPUPercent != nil {
			score += headroom(*metrics.GPUPercent, policy.EffectiveGPUCap()) * weightGPUHeadroom
		}
		if role == structs.RoleAuto || role == structs.RolePreferInference {
			score += weightRoleMatchBonus
		} else {
			score -= weightRoleMismatchPenalty
		}
	case task.PrefersCPU():
		if !node.HasGPU() {
			score += weightCPUTaskCPUNodeBonus
		}
		if role == structs.RoleAuto || role == structs.RolePreferEmbeddings || role == structs.RolePreferPreprocess {
			score += weightRoleMatchBonus
		} else {
			score -= weightRoleMismatchPenalty
		}
	}

	score -= float64(metrics.RunningJobs) * weightRunningJobsPenalty

	return round3(score)
}

// RankedCandidate is one node's evaluation for a task.
type RankedCandidate struct {
	NodeID   string   `json:"node_id"`
	Eligible bool     `json:"eligible"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons"`
}

// RankNodes evaluates every node for the task and returns candidates sorted
// eligible-first, then score descending, then node id ascending. The node id
// tie-break keeps ranking deterministic for identical inputs.
func RankNodes(nodes []*structs.Node, task structs.TaskType) []*RankedCandidate {
	ranked := make([]*RankedCandidate, 0, len(nodes))
	for _, node := range nodes {
		eligible, reasons := EvaluateNodeEligibility(node, task)
		ranked = append(ranked, &RankedCandidate{
			NodeID:   node.NodeID,
			Eligible: eligible,
			Score:    ScoreNode(node, task),
			Reasons:  reasons,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.NodeID < b.NodeID
	})
	return ranked
}

// PickNode returns the best eligible node id for the task, or false when no
// node qualifies.
func PickNode(nodes []*structs.Node, task structs.TaskType) (string, bool) {
	ranked := RankNodes(nodes, task)
	if len(ranked) == 0 || !ranked[0].Eligible {
		return "", false
	}
	return ranked[0].NodeID, true
}

// EffectiveCapacity is a node's capacity after policy caps are applied.
type EffectiveCapacity struct {
	CPUThreads float64  `json:"effective_cpu_threads"`
	RAMGB      float64  `json:"effective_ram_gb"`
	VRAMGB     *float64 `json:"effective_vram_gb"`
}

// ComputeEffectiveCapacity scales a node's hardware totals by its policy cap
// percents. VRAM is nil when the node has no GPU memory to offer.
func ComputeEffectiveCapacity(node *structs.Node) EffectiveCapacity {
	policy := node.Policy
	if policy == nil {
		policy = structs.DefaultNodePolicy()
	}
	caps := node.Capabilities
	if caps == nil {
		caps = structs.DefaultNodeCapabilities()
	}

	ec := EffectiveCapacity{
		CPUThreads: round3(float64(caps.CPUThreads) * policy.CPUCapPercent / 100),
		RAMGB:      round3(caps.RAMTotalGB * policy.RAMCapPercent / 100),
	}
	if caps.VRAMTotalGB != nil {
		vram := round3(*caps.VRAMTotalGB * policy.EffectiveGPUCap() / 100)
		ec.VRAMGB = &vram
	}
	return ec
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
