package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/notifier"
)

const gib = float64(1 << 30)

// CPUReport renders the /resources cpu reply.
func CPUReport(ctx context.Context) string {
	percentages, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil || len(percentages) == 0 {
		return fmt.Sprintf("Error reading CPU info: %v", err)
	}
	logical, _ := cpu.CountsWithContext(ctx, true)
	physical, _ := cpu.CountsWithContext(ctx, false)

	var sb strings.Builder
	fmt.Fprintf(&sb, "*CPU*\nTotal usage: *%.1f%%*\n\n*Cores:* %d logical (%d physical)", percentages[0], logical, physical)
	if avg, err := load.AvgWithContext(ctx); err == nil {
		fmt.Fprintf(&sb, "\n\n*Load average*\n1 min: *%.2f*\n5 min: *%.2f*\n15 min: *%.2f*", avg.Load1, avg.Load5, avg.Load15)
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		fmt.Fprintf(&sb, "\n\n*Uptime:* %s", notifier.FormatDuration(time.Duration(up)*time.Second))
	}
	return sb.String()
}

// RAMReport renders the /resources ram reply, RAM plus swap.
func RAMReport(ctx context.Context) string {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading memory info: %v", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Memory*\n\n*RAM:* %.1f%%\ntotal: *%.1fG*\nused: *%.1fG*\nfree: *%.1fG*\ncached: *%.2fG*",
		vm.UsedPercent, float64(vm.Total)/gib, float64(vm.Used)/gib, float64(vm.Free)/gib, float64(vm.Cached)/gib)
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		fmt.Fprintf(&sb, "\n\n*Swap:* %.1f%%\ntotal: *%.1fG*\nused: *%.1fG*\nfree: *%.1fG*",
			swap.UsedPercent, float64(swap.Total)/gib, float64(swap.Used)/gib, float64(swap.Free)/gib)
	}
	return sb.String()
}

// DiskReport renders the /resources disk reply for the monitored mounts.
func DiskReport(ctx context.Context, mounts []config.MountPoint) string {
	if len(mounts) == 0 {
		mounts = []config.MountPoint{{Path: "/"}}
	}
	var sb strings.Builder
	sb.WriteString("*Disk*")
	for _, mp := range mounts {
		u, err := disk.UsageWithContext(ctx, mp.Path)
		if err != nil {
			fmt.Fprintf(&sb, "\n%s: error reading usage (%v)", mp.Path, err)
			continue
		}
		fmt.Fprintf(&sb, "\n%s: *%.1f%%* used (%.1f GB / %.1f GB)",
			mp.Path, u.UsedPercent, float64(u.Used)/gib, float64(u.Total)/gib)
	}
	return sb.String()
}

// NetworkReport renders the /resources net reply with cumulative counters
// and per-interface addresses.
func NetworkReport(ctx context.Context) string {
	counters, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		return fmt.Sprintf("Error reading network info: %v", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Network*\nData sent: %.2f MB\nData received: %.2f MB",
		float64(counters[0].BytesSent)/(1<<20), float64(counters[0].BytesRecv)/(1<<20))
	if ifaces, err := gopsnet.InterfacesWithContext(ctx); err == nil {
		sb.WriteString("\n\n*Interfaces*:")
		shown := 0
		for _, iface := range ifaces {
			if shown >= 5 {
				break
			}
			for _, addr := range iface.Addrs {
				if strings.Contains(addr.Addr, ":") {
					continue // IPv4 only, as in the overview message
				}
				fmt.Fprintf(&sb, "\n%s: %s", iface.Name, addr.Addr)
				shown++
				break
			}
		}
	}
	return sb.String()
}

// OverviewReport is the /resources default: headline numbers followed by
// the detailed sections.
func OverviewReport(ctx context.Context, mounts []config.MountPoint) string {
	var sb strings.Builder
	sb.WriteString("*System overview*\n")
	if percentages, err := cpu.PercentWithContext(ctx, time.Second, false); err == nil && len(percentages) > 0 {
		fmt.Fprintf(&sb, "\nCPU: *%.1f%%*", percentages[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fmt.Fprintf(&sb, "\nRAM: *%.1f%%*", vm.UsedPercent)
	}
	if u, err := disk.UsageWithContext(ctx, "/"); err == nil {
		fmt.Fprintf(&sb, "\nRoot disk: *%.1f%%*", u.UsedPercent)
	}
	sb.WriteString("\n\n")
	sb.WriteString(RAMReport(ctx))
	sb.WriteString("\n\n")
	sb.WriteString(DiskReport(ctx, mounts))
	return sb.String()
}
