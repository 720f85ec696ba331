// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package fingerprint probes the static hardware and OS attributes an agent
// advertises at registration: CPU topology, memory, GPU presence, platform.
package fingerprint

import (
	"runtime"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/nvidia"
	"github.com/edgemesh/edgemesh/helper/pointer"
	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Fingerprint collects the host's capabilities. Probe failures degrade to
// zero values rather than aborting; a node with unknown CPU topology is
// still schedulable.
func Fingerprint(logger hclog.Logger) *structs.RegisterCapabilities {
	caps := &structs.RegisterCapabilities{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if cores, err := cpu.Counts(false); err == nil {
		caps.CPUCores = cores
	} else {
		logger.Warn("failed to detect physical cores", "error", err)
	}
	if threads, err := cpu.Counts(true); err == nil {
		caps.CPUThreads = threads
	} else {
		logger.Warn("failed to detect logical cpus", "error", err)
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		caps.RAMTotalGB = round1(float64(vmem.Total) / 1e9)
	} else {
		logger.Warn("failed to detect memory", "error", err)
	}

	if info, err := host.Info(); err == nil && info.Platform != "" {
		caps.OS = info.Platform
	}

	gpu, err := nvidia.Probe()
	if err != nil {
		logger.Warn("gpu probe failed", "error", err)
	}
	if gpu != nil {
		caps.GPUName = pointer.Of(gpu.Name)
		caps.VRAMTotalGB = pointer.Of(round1(gpu.VRAMTotalGB))
		caps.Labels = append(caps.Labels, "gpu")
		caps.TaskTypes = structs.AllTaskTypes()
	} else {
		caps.Labels = append(caps.Labels, "cpu")
		// CPU-only hosts take everything except inference.
		for _, t := range structs.AllTaskTypes() {
			if !t.RequiresGPU() {
				caps.TaskTypes = append(caps.TaskTypes, t)
			}
		}
	}

	return caps
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
