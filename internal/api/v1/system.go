package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo represents basic host and process information
type SystemInfo struct {
	OS            string    `json:"os"`
	Architecture  string    `json:"architecture"`
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	PlatformVer   string    `json:"platform_version"`
	KernelVersion string    `json:"kernel_version"`
	UpTime        uint64    `json:"uptime_seconds"`
	BootTime      time.Time `json:"boot_time"`
	AppStart      time.Time `json:"app_start_time"`
	AppUptime     int64     `json:"app_uptime_seconds"`
	NumCPU        int       `json:"num_cpu"`
	GoVersion     string    `json:"go_version"`
	Goroutines    int       `json:"goroutines"`
	MemoryTotal   uint64    `json:"memory_total"`
	MemoryUsed    uint64    `json:"memory_used"`
	MemoryUsage   float64   `json:"memory_usage_percent"`
}

// GetSystemInfo handles GET /api/v1/system
func (c *Controller) GetSystemInfo(ctx echo.Context) error {
	hostInfo, err := host.Info()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get host information", http.StatusInternalServerError)
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get memory information", http.StatusInternalServerError)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := SystemInfo{
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		Hostname:      hostname,
		Platform:      hostInfo.Platform,
		PlatformVer:   hostInfo.PlatformVersion,
		KernelVersion: hostInfo.KernelVersion,
		UpTime:        hostInfo.Uptime,
		BootTime:      time.Unix(int64(hostInfo.BootTime), 0), //nolint:gosec // boot time fits in int64
		AppStart:      c.startTime,
		AppUptime:     int64(time.Since(c.startTime).Seconds()),
		NumCPU:        runtime.NumCPU(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		MemoryTotal:   memInfo.Total,
		MemoryUsed:    memInfo.Used,
		MemoryUsage:   memInfo.UsedPercent,
	}

	return ctx.JSON(http.StatusOK, info)
}
