// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package stats samples live host resource usage for heartbeats.
package stats

import (
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/nvidia"
	"github.com/edgemesh/edgemesh/helper/pointer"
	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Collector samples host usage. It is cheap to call on every heartbeat;
// cpu.Percent with a zero interval measures since the previous call.
type Collector struct {
	logger hclog.Logger
	hasGPU bool
}

// NewCollector returns a collector. gpu probing is decided once up front so
// heartbeats on CPU-only hosts never exec nvidia-smi.
func NewCollector(logger hclog.Logger, hasGPU bool) *Collector {
	// Prime the cpu sampler so the first heartbeat reports a real
	// interval instead of zero.
	cpu.Percent(0, false)

	return &Collector{
		logger: logger.Named("stats"),
		hasGPU: hasGPU,
	}
}

// Sample reads current usage. Individual probe failures zero the affected
// fields; a heartbeat with partial metrics beats no heartbeat.
func (c *Collector) Sample() *structs.HeartbeatMetrics {
	metrics := &structs.HeartbeatMetrics{}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		metrics.CPUPercent = clampPercent(percents[0])
	} else if err != nil {
		c.logger.Warn("cpu sample failed", "error", err)
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.RAMUsedGB = float64(vmem.Used) / 1e9
		metrics.RAMPercent = clampPercent(vmem.UsedPercent)
	} else {
		c.logger.Warn("memory sample failed", "error", err)
	}

	if c.hasGPU {
		usage, err := nvidia.Usage()
		if err != nil {
			c.logger.Warn("gpu sample failed", "error", err)
		} else if usage != nil {
			metrics.GPUPercent = pointer.Of(clampPercent(usage.UtilizationPercent))
			metrics.VRAMUsedGB = pointer.Of(usage.VRAMUsedGB)
		}
	}

	return metrics
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
