package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/collector"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/metrics"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/notifier"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/store/memory"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// sentMessages captures every telegram message body the dispatcher sends.
type sentMessages struct {
	texts []string
}

func (s *sentMessages) transport() roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		var payload struct {
			Text string `json:"text"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		s.texts = append(s.texts, payload.Text)
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Header:     make(http.Header),
		}, nil
	}
}

func newTestMonitor(t *testing.T) (*Monitor, *config.Manager, *sentMessages) {
	t.Helper()
	dir := t.TempDir()

	cfgm, err := config.NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg := cfgm.Snapshot()
	cfg.AuthLogPath = filepath.Join(dir, "auth.log")
	cfg.AuthLogPosition = filepath.Join(dir, "auth.pos")
	cfg.ExcludedIPs = nil
	if err := cfgm.Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := os.WriteFile(cfg.AuthLogPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	sent := &sentMessages{}
	tg := notifier.NewTelegram("tok", "1")
	tg.HTTP = &http.Client{Transport: sent.transport()}

	stats := metrics.New(nil)
	eval := alerts.NewEvaluator(memory.New(), zap.NewNop())
	disp := notifier.NewDispatcher(tg, zap.NewNop(), stats)
	m := New(cfgm, eval, disp,
		collector.NewHost(),
		collector.NewAuthLogWatcher(cfg.AuthLogPath, cfg.AuthLogPosition, zap.NewNop()),
		collector.NewInternetChecker(),
		zap.NewNop(), stats)
	return m, cfgm, sent
}

func TestThresholdLifecycle(t *testing.T) {
	m, cfgm, sent := newTestMonitor(t)
	ctx := context.Background()
	cfg := cfgm.Snapshot()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return t0 }

	m.checkThreshold(ctx, cfg, alerts.KeyCPU, "CPU usage", 95, 90)
	if len(sent.texts) != 1 || !strings.Contains(sent.texts[0], "CPU usage high") {
		t.Fatalf("initial: %v", sent.texts)
	}

	// Still failing shortly after: nothing new.
	m.now = func() time.Time { return t0.Add(time.Minute) }
	m.checkThreshold(ctx, cfg, alerts.KeyCPU, "CPU usage", 96, 90)
	if len(sent.texts) != 1 {
		t.Fatalf("within interval: %v", sent.texts)
	}

	// Past the default hourly cadence: a reminder with the counter.
	m.now = func() time.Time { return t0.Add(time.Hour) }
	m.checkThreshold(ctx, cfg, alerts.KeyCPU, "CPU usage", 97, 90)
	if len(sent.texts) != 2 || !strings.Contains(sent.texts[1], "REMINDER (1)") {
		t.Fatalf("reminder: %v", sent.texts)
	}

	// Back below threshold: a single recovery with the full duration.
	m.now = func() time.Time { return t0.Add(90 * time.Minute) }
	m.checkThreshold(ctx, cfg, alerts.KeyCPU, "CPU usage", 40, 90)
	if len(sent.texts) != 3 {
		t.Fatalf("recovery: %v", sent.texts)
	}
	if !strings.Contains(sent.texts[2], "RESOLVED") || !strings.Contains(sent.texts[2], "1h 30m 0s") {
		t.Fatalf("recovery text: %q", sent.texts[2])
	}

	m.checkThreshold(ctx, cfg, alerts.KeyCPU, "CPU usage", 41, 90)
	if len(sent.texts) != 3 {
		t.Fatalf("repeated recovery: %v", sent.texts)
	}
}

func TestSSHNotification(t *testing.T) {
	m, cfgm, sent := newTestMonitor(t)
	ctx := context.Background()
	cfg := cfgm.Snapshot()

	line := "Mar  1 12:00:00 myhost sshd[1234]: Accepted publickey for deploy from 203.0.113.7 port 55122 ssh2\n"
	if err := os.WriteFile(cfg.AuthLogPath, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}

	m.checkSSH(ctx, cfg)
	if len(sent.texts) != 1 {
		t.Fatalf("messages: %v", sent.texts)
	}
	msg := sent.texts[0]
	if !strings.Contains(msg, "SSH Connection detected") ||
		!strings.Contains(msg, "203.0.113.7") ||
		!strings.Contains(msg, "deploy") ||
		!strings.Contains(msg, "https://ipinfo.io/203.0.113.7") {
		t.Fatalf("ssh message: %q", msg)
	}

	// Same log content again: the offset already consumed it.
	m.checkSSH(ctx, cfg)
	if len(sent.texts) != 1 {
		t.Fatalf("replayed login: %v", sent.texts)
	}
}

func TestSSHRespectsToggle(t *testing.T) {
	m, cfgm, sent := newTestMonitor(t)
	ctx := context.Background()
	cfg := cfgm.Snapshot()
	cfg.NotifySSH = false

	line := "Mar  1 12:00:00 myhost sshd[1234]: Accepted publickey for deploy from 203.0.113.7 port 55122 ssh2\n"
	if err := os.WriteFile(cfg.AuthLogPath, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}
	m.checkSSH(ctx, cfg)
	if len(sent.texts) != 0 {
		t.Fatalf("messages with ssh disabled: %v", sent.texts)
	}
}

func TestRebootDetection(t *testing.T) {
	m, cfgm, sent := newTestMonitor(t)
	ctx := context.Background()
	cfg := cfgm.Snapshot()

	// Pretend the previous cycle saw a machine that had been up for years;
	// the real uptime reading is necessarily smaller.
	m.uptimeSeen = true
	m.lastUptime = 10 * 365 * 24 * time.Hour
	m.checkReboot(ctx, cfg)
	if len(sent.texts) != 1 || !strings.Contains(sent.texts[0], "Server rebooted") {
		t.Fatalf("reboot notice: %v", sent.texts)
	}

	// Uptime grows normally afterwards: no further notices.
	m.checkReboot(ctx, cfg)
	if len(sent.texts) != 1 {
		t.Fatalf("repeated reboot notice: %v", sent.texts)
	}
}

func TestRebootRespectsToggle(t *testing.T) {
	m, cfgm, sent := newTestMonitor(t)
	ctx := context.Background()
	cfg := cfgm.Snapshot()
	cfg.NotifyReboot = false

	m.uptimeSeen = true
	m.lastUptime = 10 * 365 * 24 * time.Hour
	m.checkReboot(ctx, cfg)
	if len(sent.texts) != 0 {
		t.Fatalf("reboot notice with toggle off: %v", sent.texts)
	}
}
