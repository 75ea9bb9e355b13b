package sensocto

import (
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostSnapshot is an optional, additive field on the connector join
// payload carrying a point-in-time view of the local host. The server is
// free to ignore it; nothing in the protocol requires it.
type hostSnapshot struct {
	Hostname    string  `json:"hostname,omitempty"`
	OS          string  `json:"os,omitempty"`
	UptimeSecs  uint64  `json:"uptime_seconds,omitempty"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemUsedPct  float64 `json:"mem_used_percent"`
	CapturedAt  int64   `json:"captured_at_ms"`
}

// captureHostSnapshot gathers a best-effort host diagnostic snapshot. Any
// individual source that fails to read is simply omitted rather than
// failing the whole connect attempt — this metadata is diagnostic, not
// load-bearing.
func captureHostSnapshot(logger *slog.Logger) *hostSnapshot {
	snap := &hostSnapshot{CapturedAt: time.Now().UnixMilli()}

	if info, err := host.Info(); err == nil {
		snap.Hostname = info.Hostname
		snap.OS = info.OS
		snap.UptimeSecs = info.Uptime
	} else {
		logger.Debug("host.Info unavailable", "err", err)
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	} else if err != nil {
		logger.Debug("cpu.Percent unavailable", "err", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemUsedPct = vm.UsedPercent
	} else {
		logger.Debug("mem.VirtualMemory unavailable", "err", err)
	}

	return snap
}
