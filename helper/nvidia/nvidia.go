// Package nvidia shells out to nvidia-smi to discover GPU hardware and read
// live utilization. Hosts without the tool simply have no GPU as far as the
// agent is concerned.
package nvidia

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const nvidiaSMI = "nvidia-smi"

// GPUInfo is the static description of the first GPU on the host.
type GPUInfo struct {
	Name        string
	VRAMTotalGB float64
}

// GPUUsage is a point-in-time utilization sample for the first GPU.
type GPUUsage struct {
	UtilizationPercent float64
	VRAMUsedGB         float64
}

// Available reports whether nvidia-smi is on the PATH.
func Available() bool {
	_, err := exec.LookPath(nvidiaSMI)
	return err == nil
}

// Probe queries the GPU name and total memory. Returns nil without error
// when no GPU is present or the tool is missing.
func Probe() (*GPUInfo, error) {
	if !Available() {
		return nil, nil
	}
	row, err := query("name,memory.total")
	if err != nil || row == "" {
		return nil, err
	}

	name, memMiB, err := ParseQueryRow(row)
	if err != nil {
		return nil, err
	}
	return &GPUInfo{
		Name:        name,
		VRAMTotalGB: mibToGB(memMiB),
	}, nil
}

// Usage queries current GPU utilization and memory use. Returns nil without
// error when no GPU is present.
func Usage() (*GPUUsage, error) {
	if !Available() {
		return nil, nil
	}
	row, err := query("utilization.gpu,memory.used")
	if err != nil || row == "" {
		return nil, err
	}

	utilRaw, memMiB, err := ParseQueryRow(row)
	if err != nil {
		return nil, err
	}
	util, err := strconv.ParseFloat(strings.TrimSpace(utilRaw), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpu utilization %q: %w", utilRaw, err)
	}
	return &GPUUsage{
		UtilizationPercent: util,
		VRAMUsedGB:         mibToGB(memMiB),
	}, nil
}

func query(fields string) (string, error) {
	cmd := exec.Command(nvidiaSMI,
		"--query-gpu="+fields,
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		// The tool exists but cannot talk to a GPU (driver trouble,
		// containers): treat as no GPU rather than failing the agent.
		return "", nil
	}
	// Multiple GPUs report one line each; the first is authoritative.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return "", nil
	}
	return strings.TrimSpace(lines[0]), nil
}

// ParseQueryRow parses a two-column nvidia-smi csv row where the second
// column is a MiB quantity.
func ParseQueryRow(row string) (string, float64, error) {
	parts := strings.SplitN(row, ",", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("unexpected nvidia-smi output %q", row)
	}
	mib, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse nvidia-smi memory %q: %w", parts[1], err)
	}
	return strings.TrimSpace(parts[0]), mib, nil
}

func mibToGB(mib float64) float64 {
	return mib * 1024 * 1024 / (1000 * 1000 * 1000)
}
