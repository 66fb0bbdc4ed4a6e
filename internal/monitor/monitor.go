package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/collector"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/metrics"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/notifier"
)

// Monitor drives evaluation cycles: it samples each monitored resource,
// turns the reading into a problem/no-problem signal and feeds it through
// the Evaluator, dispatching whatever notification comes back. Checks
// within one cycle run concurrently; cycles never overlap, so no identity
// is ever evaluated concurrently with itself.
type Monitor struct {
	cfg      *config.Manager
	eval     *alerts.Evaluator
	disp     *notifier.Dispatcher
	host     *collector.Host
	authlog  *collector.AuthLogWatcher
	internet *collector.InternetChecker
	log      *zap.Logger
	stats    *metrics.Metrics
	now      func() time.Time

	lastUptime   time.Duration
	uptimeSeen   bool
	lastSSHScan  time.Time
	lastNetCheck time.Time
}

func New(cfg *config.Manager, eval *alerts.Evaluator, disp *notifier.Dispatcher, host *collector.Host, authlog *collector.AuthLogWatcher, internet *collector.InternetChecker, logger *zap.Logger, stats *metrics.Metrics) *Monitor {
	return &Monitor{
		cfg:      cfg,
		eval:     eval,
		disp:     disp,
		host:     host,
		authlog:  authlog,
		internet: internet,
		log:      logger,
		stats:    stats,
		now:      time.Now,
	}
}

// Run loops until ctx is cancelled, with an immediate first cycle.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.cfg.Snapshot().MetricsEvery())
	defer t.Stop()

	m.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return
		case <-t.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle runs one full evaluation pass. The settings snapshot is taken once
// per cycle, so config edits apply on the next pass.
func (m *Monitor) Cycle(ctx context.Context) {
	cfg := m.cfg.Snapshot()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { m.checkCPU(gctx, cfg); return nil })
	g.Go(func() error { m.checkRAM(gctx, cfg); return nil })
	g.Go(func() error { m.checkTemperature(gctx, cfg); return nil })
	for _, mp := range cfg.MountPoints {
		mp := mp
		g.Go(func() error { m.checkDisk(gctx, cfg, mp); return nil })
	}
	_ = g.Wait()

	now := m.now()
	if now.Sub(m.lastNetCheck) >= cfg.InternetEvery() {
		m.lastNetCheck = now
		m.checkInternet(ctx, cfg)
	}
	if now.Sub(m.lastSSHScan) >= cfg.SSHCheckEvery() {
		m.lastSSHScan = now
		m.checkSSH(ctx, cfg)
	}
	m.checkReboot(ctx, cfg)

	m.stats.EvaluationCycles.Inc()
}

func (m *Monitor) checkCPU(ctx context.Context, cfg config.Config) {
	v, err := m.host.CPUPercent(ctx)
	if err != nil {
		m.skipSample(ctx, "cpu", err)
		return
	}
	m.checkThreshold(ctx, cfg, alerts.KeyCPU, "CPU usage", v, cfg.CPUThreshold)
}

func (m *Monitor) checkRAM(ctx context.Context, cfg config.Config) {
	v, err := m.host.MemoryPercent(ctx)
	if err != nil {
		m.skipSample(ctx, "ram", err)
		return
	}
	m.checkThreshold(ctx, cfg, alerts.KeyRAM, "RAM usage", v, cfg.RAMThreshold)
}

func (m *Monitor) checkDisk(ctx context.Context, cfg config.Config, mp config.MountPoint) {
	u, err := m.host.DiskUsage(ctx, mp.Path)
	if err != nil {
		m.skipSample(ctx, "disk", err)
		return
	}
	threshold := mp.Threshold
	if threshold <= 0 {
		threshold = 90
	}
	label := fmt.Sprintf("Disk usage on %s", mp.Path)
	m.checkThreshold(ctx, cfg, alerts.DiskKey(mp.Path), label, u.UsedPercent, threshold)
}

func (m *Monitor) checkTemperature(ctx context.Context, cfg config.Config) {
	v, err := m.host.Temperature(ctx)
	if err != nil {
		// Common on hosts without exposed sensors; debug, not warn.
		m.log.Debug("temperature sample unavailable", zap.Error(err))
		return
	}
	key := alerts.KeyTemp
	settings := cfg.SettingsFor(key.Type())
	problem := v > cfg.TempThreshold
	var msg string
	if problem {
		msg = fmt.Sprintf("🌡 *Temperature high*: %.1f°C (threshold %.0f°C)", v, cfg.TempThreshold)
	} else {
		msg = fmt.Sprintf("Temperature back to normal: %.1f°C", v)
	}
	m.evaluate(ctx, key, problem, v, cfg.TempThreshold, msg, settings)
}

func (m *Monitor) checkThreshold(ctx context.Context, cfg config.Config, key alerts.Key, label string, value, threshold float64) {
	settings := cfg.SettingsFor(key.Type())
	problem := value > threshold
	var msg string
	if problem {
		msg = fmt.Sprintf("⚠️ *%s high*: %.1f%% (threshold %.0f%%)", label, value, threshold)
	} else {
		msg = fmt.Sprintf("%s back below threshold: %.1f%%", label, value)
	}
	m.evaluate(ctx, key, problem, value, threshold, msg, settings)
}

func (m *Monitor) checkInternet(ctx context.Context, cfg config.Config) {
	connected := m.internet.Connected(ctx)
	settings := cfg.SettingsFor(alerts.KeyInternet.Type())
	var msg string
	if connected {
		msg = "Internet connection restored"
	} else {
		// Delivery will usually fail while offline; state is committed
		// anyway so the recovery notice carries the real downtime.
		msg = "⚠️ *INTERNET CONNECTION LOST*"
	}
	m.evaluate(ctx, alerts.KeyInternet, !connected, 0, 0, msg, settings)
}

func (m *Monitor) checkSSH(ctx context.Context, cfg config.Config) {
	settings := cfg.SettingsFor("ssh")
	if !settings.Enabled || !cfg.NotifySSH {
		return
	}
	logins, err := m.authlog.Scan(cfg.ExcludedIPs)
	if err != nil {
		m.skipSample(ctx, "ssh", err)
		return
	}
	for _, l := range logins {
		msg := fmt.Sprintf("*SSH Connection detected*\nConnection from *%s* as *%s* on *%s*\nDate: %s\nMore information: https://ipinfo.io/%s",
			l.SourceIP, l.User, l.Hostname, l.Time.Format("02 Jan 2006 15:04"), l.SourceIP)
		m.evaluate(ctx, alerts.SSHKey(l.SourceIP, l.User), true, 0, 0, msg, settings)
	}
}

// checkReboot compares host uptime between cycles; a decrease means the
// machine restarted. The notice is a one-shot event outside the lifecycle
// state machine, mirroring a forced send.
func (m *Monitor) checkReboot(ctx context.Context, cfg config.Config) {
	up, err := m.host.Uptime(ctx)
	if err != nil {
		m.skipSample(ctx, "uptime", err)
		return
	}
	prev := m.lastUptime
	seen := m.uptimeSeen
	m.lastUptime = up
	m.uptimeSeen = true
	if !seen || up >= prev || prev <= 10*time.Second {
		return
	}
	if !cfg.NotifyReboot || !cfg.SettingsFor("reboot").Enabled {
		m.log.Info("reboot detected, notifications disabled")
		return
	}
	hostname, _ := os.Hostname()
	m.disp.Dispatch(ctx, alerts.Notification{
		Kind: alerts.KindInitial,
		Key:  "reboot:host",
		Message: fmt.Sprintf("🔄 *Server rebooted*\nHostname: *%s*\nCurrent uptime: %s",
			hostname, notifier.FormatDuration(up)),
	})
}

func (m *Monitor) evaluate(ctx context.Context, key alerts.Key, isProblem bool, value, threshold float64, msg string, settings alerts.Settings) {
	n, err := m.eval.Evaluate(ctx, key, isProblem, value, threshold, msg, m.now(), settings)
	if err != nil {
		// Non-fatal: in-memory decision stands, next cycle rewrites.
		m.stats.PersistenceErrors.Inc()
		m.log.Warn("alert record persistence failed", zap.String("key", string(key)), zap.Error(err))
	}
	if n.Kind != alerts.KindNone {
		m.disp.Dispatch(ctx, n)
	}
}

func (m *Monitor) skipSample(ctx context.Context, resource string, err error) {
	m.stats.SampleErrors.WithLabelValues(resource).Inc()
	m.log.Warn("sample failed, skipping cycle for resource", zap.String("resource", resource), zap.Error(err))
}
