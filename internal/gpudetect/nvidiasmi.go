package gpudetect

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/clawbernetes/clawgatewayd/internal/attestation"
)

// NvidiaSMIDetector enumerates GPUs by shelling out to nvidia-smi. Unlike
// a polling metrics collector, this is a one-shot inventory call: the
// gateway only needs a node's GPU model/VRAM at registration and
// attestation time, not a streaming history.
type NvidiaSMIDetector struct {
	// Binary overrides the nvidia-smi executable name/path; empty uses
	// "nvidia-smi" from PATH.
	Binary string
}

func (d NvidiaSMIDetector) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "nvidia-smi"
}

// Detect runs nvidia-smi and parses one GpuInfo per reported device.
func (d NvidiaSMIDetector) Detect() ([]attestation.GpuInfo, error) {
	cmd := exec.Command(d.binary(),
		"--query-gpu=name,memory.total,compute_cap",
		"--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi not available or no GPUs found: %w", err)
	}

	var gpus []attestation.GpuInfo
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ", ")
		if len(fields) < 3 {
			continue
		}
		vram, _ := parseUint64(fields[1])
		gpus = append(gpus, attestation.GpuInfo{
			Model:             strings.TrimSpace(fields[0]),
			VRAMMiB:           vram,
			ComputeCapability: strings.TrimSpace(fields[2]),
		})
	}
	if len(gpus) == 0 {
		return nil, fmt.Errorf("no GPUs discovered")
	}
	return gpus, nil
}

func parseUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[Not Supported]" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
