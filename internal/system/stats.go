package system

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of host and process memory, used by the
// performance report.
type Snapshot struct {
	CPUs        int
	TotalMemory uint64
	UsedPercent float64
	ProcessRSS  uint64
	Goroutines  int
}

// TakeSnapshot samples memory usage. Fields that cannot be read stay zero.
func TakeSnapshot() Snapshot {
	s := Snapshot{
		CPUs:       runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.TotalMemory = vm.Total
		s.UsedPercent = vm.UsedPercent
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			s.ProcessRSS = info.RSS
		}
	}
	return s
}

func (s Snapshot) String() string {
	return fmt.Sprintf("CPUs: %d | RAM: %.1f%% of %s | RSS: %s | Goroutines: %d",
		s.CPUs, s.UsedPercent, humanBytes(s.TotalMemory), humanBytes(s.ProcessRSS), s.Goroutines)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
