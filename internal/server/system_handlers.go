package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/openfund/fundament/internal/database"
	"github.com/openfund/fundament/internal/scheduler"
)

// SystemHandlers handles system monitoring and job trigger endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	cacheDB     *database.DB
	scheduler   *scheduler.Scheduler
	cleanupJob  scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance.
// sched and cleanupJob may be nil; the trigger endpoint then reports
// the job as unavailable.
func NewSystemHandlers(log zerolog.Logger, dataDir string, cacheDB *database.DB, sched *scheduler.Scheduler, cleanupJob scheduler.Job) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		cacheDB:     cacheDB,
		scheduler:   sched,
		cleanupJob:  cleanupJob,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	DataDirMB     float64 `json:"data_dir_mb"`
	LastChecked   string  `json:"last_checked"`
}

// HandleSystemStatus returns host resource usage and process uptime.
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	diskPercent := 0.0
	if usage, err := disk.Usage(h.dataDir); err == nil {
		diskPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DiskPercent:   diskPercent,
		DataDirMB:     h.getDirSize(h.dataDir),
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	writeJSON(w, http.StatusOK, response)
}

// DBInfo describes one database file on disk
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases       []DBInfo `json:"databases"`
	TotalSizeMB     float64  `json:"total_size_mb"`
	OpenConnections int      `json:"open_connections"`
	LastChecked     string   `json:"last_checked"`
}

// HandleDatabaseStats returns cache database statistics.
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	if h.cacheDB != nil {
		if info, err := os.Stat(h.cacheDB.Path()); err == nil {
			sizeMB := float64(info.Size()) / 1024 / 1024
			totalSizeMB += sizeMB
			databases = append(databases, DBInfo{
				Name:   h.cacheDB.Name(),
				Path:   h.cacheDB.Path(),
				SizeMB: sizeMB,
			})
		}
	}

	response := DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}
	if h.cacheDB != nil {
		response.OpenConnections = h.cacheDB.Conn().Stats().OpenConnections
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus lists the registered background jobs.
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []string{}
	if h.scheduler != nil {
		jobs = h.scheduler.JobNames()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleTriggerCacheCleanup runs the client-data cleanup job immediately,
// outside its nightly schedule.
// POST /api/system/jobs/cache-cleanup
func (h *SystemHandlers) HandleTriggerCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil || h.cleanupJob == nil {
		h.log.Warn().Msg("Cache cleanup job not registered")
		writeDetail(w, http.StatusServiceUnavailable, "cache cleanup job not registered")
		return
	}

	h.log.Info().Msg("Manual cache cleanup triggered")

	if err := h.scheduler.RunNow(h.cleanupJob); err != nil {
		h.log.Error().Err(err).Msg("Cache cleanup failed")
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cache cleanup completed",
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval to keep the endpoint fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
