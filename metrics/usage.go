package metrics

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a snapshot of this process's resource consumption.
type Usage struct {
	RSSMB      float64
	CPUPercent float64
}

// ResourceUsage reads resident memory and CPU share of the current process.
func ResourceUsage() (Usage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get process: %w", err)
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get CPU percent: %w", err)
	}

	return Usage{
		RSSMB:      float64(memInfo.RSS) / (1 << 20),
		CPUPercent: cpuPercent,
	}, nil
}
