// Package health gathers the gateway health report: broker
// reachability, per-queue state, and basic system metrics for the host
// serving the shared volumes.
package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/openbim/ifcpipeline/internal/broker"
)

// Queue states reported per queue. A freshly started system with no
// jobs yet is healthy, not an error.
const (
	QueueHealthy     = "healthy"
	QueueWaiting     = "waiting (no jobs yet)"
	QueueUnreachable = "unreachable"
)

// Report is the /health response body.
type Report struct {
	Status    string            `json:"status"`
	Broker    string            `json:"broker"`
	Queues    map[string]string `json:"queues"`
	System    SystemInfo        `json:"system"`
	Timestamp time.Time         `json:"timestamp"`
}

// SystemInfo summarizes host resources.
type SystemInfo struct {
	CPUCount          int     `json:"cpu_count"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
}

// Collector builds health reports.
type Collector struct {
	broker    *broker.Client
	queues    []string
	outputDir string
}

// NewCollector creates a collector over the known queues.
func NewCollector(b *broker.Client, queues []string, outputDir string) *Collector {
	return &Collector{broker: b, queues: queues, outputDir: outputDir}
}

// Collect gathers the health report. It never returns an error: broker
// failures are reported in the body so the probe itself stays 200.
func (c *Collector) Collect(ctx context.Context) Report {
	report := Report{
		Status:    "healthy",
		Broker:    "ok",
		Queues:    make(map[string]string, len(c.queues)),
		System:    c.collectSystem(),
		Timestamp: time.Now().UTC(),
	}

	brokerUp := c.broker.Ping(ctx) == nil
	if !brokerUp {
		report.Status = "degraded"
		report.Broker = "unreachable"
	}

	for _, queue := range c.queues {
		if !brokerUp {
			report.Queues[queue] = QueueUnreachable
			continue
		}
		seen, err := c.broker.QueueSeen(ctx, queue)
		switch {
		case err != nil:
			report.Queues[queue] = QueueUnreachable
			report.Status = "degraded"
		case seen:
			report.Queues[queue] = QueueHealthy
		default:
			report.Queues[queue] = QueueWaiting
		}
	}

	return report
}

// collectSystem gathers host metrics; failures leave zero values.
func (c *Collector) collectSystem() SystemInfo {
	info := SystemInfo{}

	if counts, err := cpu.Counts(true); err == nil {
		info.CPUCount = counts
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryUsedPercent = vm.UsedPercent
	}
	if usage, err := disk.Usage(c.outputDir); err == nil {
		info.DiskUsedPercent = usage.UsedPercent
	}

	return info
}
