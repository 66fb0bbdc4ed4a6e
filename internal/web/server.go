package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/notifier"
)

//go:embed templates/*.html
var webFS embed.FS

// Server hosts the settings page, a small JSON API over the alert records
// and the prometheus endpoint.
type Server struct {
	cfg    *config.Manager
	store  alerts.Store
	eval   *alerts.Evaluator
	notify *notifier.Telegram
	log    *zap.Logger
	tpl    *template.Template
}

func NewServer(cfg *config.Manager, store alerts.Store, eval *alerts.Evaluator, notify *notifier.Telegram, logger *zap.Logger) *Server {
	tpl := template.Must(template.ParseFS(webFS, "templates/*.html"))
	return &Server{cfg: cfg, store: store, eval: eval, notify: notify, log: logger, tpl: tpl}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logMiddleware(s.log))
	r.Use(cors.AllowAll().Handler)

	r.Get("/", s.handleSettingsPage)
	r.Post("/settings", s.handleSettingsSave)
	r.Get("/api/alerts", s.handleAlertsAPI)
	r.Post("/api/alerts/ack", s.handleAckAPI)
	r.Post("/api/test-telegram", s.handleTestTelegram)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type settingsView struct {
	Config    config.Config
	HasToken  bool
	HasChatID bool
	Types     []string
	Saved     bool
}

var settingTypes = []string{"cpu", "ram", "disk", "temp", "ssh", "internet", "reboot"}

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Snapshot()
	view := settingsView{
		Config:    cfg,
		HasToken:  cfg.BotToken != "",
		HasChatID: cfg.ChatID != "",
		Types:     settingTypes,
		Saved:     r.URL.Query().Get("saved") == "1",
	}
	// Credentials stay server-side; the form shows placeholders only.
	view.Config.BotToken = ""
	view.Config.ChatID = ""
	if err := s.tpl.ExecuteTemplate(w, "settings.html", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	cfg := s.cfg.Snapshot()

	if v := strings.TrimSpace(r.Form.Get("excluded_ips")); v != "" {
		var ips []string
		for _, ip := range strings.Split(v, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				ips = append(ips, ip)
			}
		}
		cfg.ExcludedIPs = ips
	} else {
		cfg.ExcludedIPs = nil
	}
	cfg.TopProcesses = clampInt(formInt(r, "top_processes", cfg.TopProcesses), 1, 20)
	cfg.CPUThreshold = clampFloat(formFloat(r, "cpu_threshold", cfg.CPUThreshold), 1, 100)
	cfg.RAMThreshold = clampFloat(formFloat(r, "ram_threshold", cfg.RAMThreshold), 1, 100)
	cfg.TempThreshold = clampFloat(formFloat(r, "temp_threshold", cfg.TempThreshold), 1, 150)
	cfg.NotifySSH = r.Form.Get("notify_ssh") != ""
	cfg.NotifyReboot = r.Form.Get("notify_reboot") != ""

	var mounts []config.MountPoint
	paths := r.Form["mount_paths[]"]
	thresholds := r.Form["mount_thresholds[]"]
	for i, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		th := 90.0
		if i < len(thresholds) {
			if parsed, err := strconv.ParseFloat(thresholds[i], 64); err == nil {
				th = clampFloat(parsed, 1, 100)
			}
		}
		mounts = append(mounts, config.MountPoint{Path: p, Threshold: th})
	}
	cfg.MountPoints = mounts

	if cfg.AlertSettings == nil {
		cfg.AlertSettings = map[string]config.AlertSetting{}
	}
	for _, t := range settingTypes {
		prev := cfg.AlertSettings[t]
		cfg.AlertSettings[t] = config.AlertSetting{
			Enabled:          r.Form.Get("alert_"+t+"_enabled") != "",
			ReminderInterval: clampInt(formInt(r, "alert_"+t+"_reminder", prev.ReminderInterval), 0, 7*24*3600),
			NotifyRecovery:   r.Form.Get("alert_"+t+"_recovery") != "",
		}
	}

	// Empty credential fields keep the stored values.
	if v := strings.TrimSpace(r.Form.Get("bot_token")); v != "" && !strings.Contains(v, "•") {
		cfg.BotToken = v
	}
	if v := strings.TrimSpace(r.Form.Get("chat_id")); v != "" && !strings.Contains(v, "•") {
		cfg.ChatID = v
	}

	if err := s.cfg.Save(cfg); err != nil {
		s.log.Error("save settings", zap.Error(err))
		http.Error(w, "could not save settings", http.StatusInternalServerError)
		return
	}
	s.notify.Update(cfg.BotToken, cfg.ChatID)
	http.Redirect(w, r, "/?saved=1", http.StatusSeeOther)
}

func (s *Server) handleAlertsAPI(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.LoadAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type row struct {
		Key string `json:"key"`
		alerts.Record
	}
	rows := make([]row, 0, len(all))
	for k, rec := range all {
		rows = append(rows, row{Key: string(k), Record: rec})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func (s *Server) handleAckAPI(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Key == "" {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := s.eval.Acknowledge(r.Context(), alerts.Key(p.Key)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.notify.Send(r.Context(), "Test message from Server Monitor"); err != nil {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func formInt(r *http.Request, name string, def int) int {
	v := r.Form.Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func formFloat(r *http.Request, name string, def float64) float64 {
	v := strings.ReplaceAll(r.Form.Get(name), ",", ".")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
