package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// healthResponse is the payload for GET /api/health.
type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	MemoryUsedMB  float64           `json:"memory_used_mb"`
	Databases     map[string]string `json:"databases"`
	KillSwitch    bool              `json:"kill_switch_active"`
	Timestamp     time.Time         `json:"timestamp"`
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent, memUsedMB := s.systemStats()

	status := "ok"
	databases := make(map[string]string)
	for name, db := range s.container.Databases() {
		if err := db.QuickCheck(r.Context()); err != nil {
			databases[name] = err.Error()
			status = "degraded"
			continue
		}
		databases[name] = "ok"
	}

	resp := healthResponse{
		Status:        status,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		MemoryUsedMB:  memUsedMB,
		Databases:     databases,
		KillSwitch:    s.container.KillSwitch.IsActive(),
		Timestamp:     time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// systemStats returns CPU and memory usage. Failures degrade to zeros
// rather than failing the health endpoint.
func (s *Server) systemStats() (cpuPercent, memPercent, memUsedMB float64) {
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	} else if err != nil {
		s.log.Debug().Err(err).Msg("Failed to read CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		memPercent = memStat.UsedPercent
		memUsedMB = float64(memStat.Used) / 1024 / 1024
	} else {
		s.log.Debug().Err(err).Msg("Failed to read memory usage")
	}

	return cpuPercent, memPercent, memUsedMB
}
