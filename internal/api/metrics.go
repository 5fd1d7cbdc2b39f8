package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics содержит метрики процесса
type ServerMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = proc
	}
	return sm
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetMemoryUsage возвращает использование памяти в MB
func (sm *ServerMetrics) GetMemoryUsage() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc == nil {
		return 0, fmt.Errorf("процесс недоступен")
	}
	return sm.proc.CPUPercent()
}

// GetRSS резидентная память процесса в MB
func (sm *ServerMetrics) GetRSS() (float64, error) {
	if sm.proc == nil {
		return 0, fmt.Errorf("процесс недоступен")
	}
	info, err := sm.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}

// handleStatus состояние сервиса: шахты и ресурсы процесса
func (rs *RestServer) handleStatus(c *gin.Context) {
	status := gin.H{
		"uptime":     rs.metrics.GetUptime(),
		"memory_mb":  rs.metrics.GetMemoryUsage(),
		"goroutines": runtime.NumGoroutine(),
		"mines":      rs.service.Registry().Count(),
		"templates":  rs.service.TemplateNames(),
	}
	if cpu, err := rs.metrics.GetCPUUsage(); err == nil {
		status["cpu_percent"] = cpu
	}
	if rss, err := rs.metrics.GetRSS(); err == nil {
		status["rss_mb"] = rss
	}

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: status})
}
