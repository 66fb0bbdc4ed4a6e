package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Host samples system resources through gopsutil. Each method returns a
// single reading; a failed read means the identity skips its evaluation
// cycle.
type Host struct{}

func NewHost() *Host { return &Host{} }

// CPUPercent blocks for the sampling window and returns total CPU usage.
func (h *Host) CPUPercent(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("no cpu sample")
	}
	return percentages[0], nil
}

func (h *Host) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

type DiskUsage struct {
	Path        string
	UsedPercent float64
	UsedBytes   uint64
	TotalBytes  uint64
	FreeBytes   uint64
}

func (h *Host) DiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{
		Path:        path,
		UsedPercent: u.UsedPercent,
		UsedBytes:   u.Used,
		TotalBytes:  u.Total,
		FreeBytes:   u.Free,
	}, nil
}

// Temperature returns the hottest sensor reading in °C. Hosts without
// exposed sensors return an error and the temperature check is skipped.
func (h *Host) Temperature(ctx context.Context) (float64, error) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	max := 0.0
	found := false
	for _, t := range temps {
		if t.Temperature <= 0 {
			continue
		}
		found = true
		if t.Temperature > max {
			max = t.Temperature
		}
	}
	if !found {
		return 0, fmt.Errorf("no temperature sensors")
	}
	return max, nil
}

func (h *Host) Uptime(ctx context.Context) (time.Duration, error) {
	sec, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(sec) * time.Second, nil
}
