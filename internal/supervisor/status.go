package supervisor

import (
	"time"

	gops "github.com/shirou/gopsutil/v3/process"
)

// Snapshot is the operator-facing status of the supervised producer.
type Snapshot struct {
	State           State     `json:"state"`
	Terminal        bool      `json:"terminal"`
	PID             int       `json:"pid,omitempty"`
	ListenPort      int       `json:"listen_port,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	UptimeSeconds   float64   `json:"uptime_seconds,omitempty"`
	CrashesInWindow int       `json:"crashes_in_window"`
	CPUPercent      float64   `json:"cpu_percent,omitempty"`
	RSSBytes        uint64    `json:"rss_bytes,omitempty"`
}

// Status returns a point-in-time snapshot. Resource figures come from the OS
// and are best-effort; a process that exits mid-sample just reports zeros.
func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:           s.state,
		Terminal:        s.terminal,
		CrashesInWindow: s.history.count(),
	}
	var pid int
	if s.proc != nil {
		pid = s.proc.PID()
		snap.PID = pid
		snap.ListenPort = s.launch.ListenPort
		snap.StartedAt = s.startedAt
		snap.UptimeSeconds = s.now().Sub(s.startedAt).Seconds()
	}
	s.mu.Unlock()

	if pid > 0 {
		if p, err := gops.NewProcess(int32(pid)); err == nil {
			if cpu, err := p.CPUPercent(); err == nil {
				snap.CPUPercent = cpu
			}
			if mem, err := p.MemoryInfo(); err == nil && mem != nil {
				snap.RSSBytes = mem.RSS
			}
		}
	}
	return snap
}
