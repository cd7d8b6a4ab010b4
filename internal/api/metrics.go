package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessMetrics снимает показатели процесса инспектора.
type ProcessMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewProcessMetrics создаёт снимальщик для текущего процесса.
func NewProcessMetrics() *ProcessMetrics {
	pm := &ProcessMetrics{StartTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		pm.proc = p
	}
	return pm
}

// Uptime возвращает время работы в виде "1d 2h 3m 4s".
func (pm *ProcessMetrics) Uptime() string {
	uptime := time.Since(pm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// CPUPercent возвращает загрузку CPU процессом в процентах.
func (pm *ProcessMetrics) CPUPercent() (float64, error) {
	if pm.proc == nil {
		return 0, fmt.Errorf("process handle unavailable")
	}
	return pm.proc.CPUPercent()
}

// RSSMegabytes возвращает резидентную память процесса в MB.
func (pm *ProcessMetrics) RSSMegabytes() (float64, error) {
	if pm.proc == nil {
		return 0, fmt.Errorf("process handle unavailable")
	}
	mi, err := pm.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(mi.RSS) / 1024 / 1024, nil
}

// Snapshot собирает показатели процесса для /api/stats. Недоступные
// показатели пропускаются.
func (pm *ProcessMetrics) Snapshot() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	out := map[string]interface{}{
		"uptime":        pm.Uptime(),
		"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
		"num_gc":        m.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
	if cpu, err := pm.CPUPercent(); err == nil {
		out["cpu_percent"] = cpu
	}
	if rss, err := pm.RSSMegabytes(); err == nil {
		out["rss_mb"] = rss
	}
	return out
}
