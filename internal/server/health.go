package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := systemStats()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startup).Seconds()),
		"cpu_percent":    cpuAvg,
		"ram_percent":    ramPercent,
	})
}

func systemStats() (cpuAvg, ramPercent float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err == nil && len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	memStat, err := mem.VirtualMemory()
	if err == nil {
		ramPercent = memStat.UsedPercent
	}
	return cpuAvg, ramPercent
}
