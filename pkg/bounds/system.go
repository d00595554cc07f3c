package bounds

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMemory is a point-in-time snapshot of host memory.
type SystemMemory struct {
	TotalMB     float64
	AvailableMB float64
	UsedPercent float64
}

// ReadSystemMemory samples host memory. Strategy auto-detection uses the
// available headroom to cap worker counts on constrained hosts.
func ReadSystemMemory() (SystemMemory, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return SystemMemory{}, err
	}
	return SystemMemory{
		TotalMB:     float64(vm.Total) / (1024 * 1024),
		AvailableMB: float64(vm.Available) / (1024 * 1024),
		UsedPercent: vm.UsedPercent,
	}, nil
}
