package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Usage is a resource sample of a running child.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// Usage samples CPU, RSS and thread count for the child. It fails when the
// process has exited or the platform does not expose the counters.
func (p *Process) Usage() (Usage, error) {
	if p.Exited() {
		return Usage{}, ErrExited
	}
	gp, err := gopsproc.NewProcess(int32(p.PID())) // #nosec G115
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	if mi, err := gp.MemoryInfo(); err == nil {
		u.MemoryRSS = mi.RSS
	}
	if c, err := gp.CPUPercent(); err == nil {
		u.CPUPercent = c
	}
	if n, err := gp.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}
