package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
)

// MountPoint is one monitored filesystem with its usage threshold percent.
type MountPoint struct {
	Path      string  `json:"path" mapstructure:"path"`
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
}

// AlertSetting is the per-type notification policy as stored in
// config.json. The reminder interval is expressed in seconds, zero meaning
// no reminders.
type AlertSetting struct {
	Enabled          bool `json:"enabled" mapstructure:"enabled"`
	ReminderInterval int  `json:"reminder_interval" mapstructure:"reminder_interval"`
	NotifyRecovery   bool `json:"notify_recovery" mapstructure:"notify_recovery"`
}

func (a AlertSetting) Settings() alerts.Settings {
	return alerts.Settings{
		Enabled:          a.Enabled,
		ReminderInterval: time.Duration(a.ReminderInterval) * time.Second,
		NotifyRecovery:   a.NotifyRecovery,
	}
}

type StoreConfig struct {
	Backend       string `json:"backend" mapstructure:"backend"` // "sqlite", "redis" or "memory"
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
}

type Config struct {
	Addr         string `json:"addr" mapstructure:"addr"`
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`
	DBPath       string `json:"db_path" mapstructure:"db_path"`
	LogDir       string `json:"log_dir" mapstructure:"log_dir"`
	DockerSocket string `json:"docker_socket" mapstructure:"docker_socket"`

	AuthLogPath     string `json:"auth_log_path" mapstructure:"auth_log_path"`
	AuthLogPosition string `json:"auth_log_position" mapstructure:"auth_log_position"`

	// Polling cadences in seconds.
	MetricsInterval  int `json:"metrics_interval" mapstructure:"metrics_interval"`
	SSHCheckInterval int `json:"ssh_check_interval" mapstructure:"ssh_check_interval"`
	InternetInterval int `json:"internet_check_interval" mapstructure:"internet_check_interval"`

	ExcludedIPs  []string     `json:"excluded_ips" mapstructure:"excluded_ips"`
	TopProcesses int          `json:"top_processes" mapstructure:"top_processes"`
	MountPoints  []MountPoint `json:"mount_points" mapstructure:"mount_points"`

	CPUThreshold  float64 `json:"cpu_threshold" mapstructure:"cpu_threshold"`
	RAMThreshold  float64 `json:"ram_threshold" mapstructure:"ram_threshold"`
	TempThreshold float64 `json:"temp_threshold" mapstructure:"temp_threshold"`

	NotifySSH    bool `json:"notify_ssh" mapstructure:"notify_ssh"`
	NotifyReboot bool `json:"notify_reboot" mapstructure:"notify_reboot"`

	BotToken string `json:"bot_token" mapstructure:"bot_token"`
	ChatID   string `json:"chat_id" mapstructure:"chat_id"`

	AlertSettings map[string]AlertSetting `json:"alert_settings" mapstructure:"alert_settings"`

	Store StoreConfig `json:"store" mapstructure:"store"`
}

func (c Config) MetricsEvery() time.Duration  { return secs(c.MetricsInterval, 30*time.Second) }
func (c Config) SSHCheckEvery() time.Duration { return secs(c.SSHCheckInterval, 30*time.Second) }
func (c Config) InternetEvery() time.Duration { return secs(c.InternetInterval, 60*time.Second) }

func secs(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// SettingsFor returns the policy for one alert type, falling back to the
// per-type default when the config has no entry.
func (c Config) SettingsFor(alertType string) alerts.Settings {
	if s, ok := c.AlertSettings[alertType]; ok {
		return s.Settings()
	}
	if s, ok := defaultAlertSettings[alertType]; ok {
		return s.Settings()
	}
	return alerts.Settings{Enabled: true, NotifyRecovery: true, ReminderInterval: time.Hour}
}

var defaultAlertSettings = map[string]AlertSetting{
	"cpu":  {Enabled: true, ReminderInterval: 3600, NotifyRecovery: true},
	"ram":  {Enabled: true, ReminderInterval: 3600, NotifyRecovery: true},
	"disk": {Enabled: true, ReminderInterval: 3600, NotifyRecovery: true},
	"temp": {Enabled: true, ReminderInterval: 3600, NotifyRecovery: true},
	// SSH alerts fire once per login and never recover on their own.
	"ssh": {Enabled: true, ReminderInterval: 0, NotifyRecovery: false},
	// Reminders cannot be delivered while the connection is down.
	"internet": {Enabled: true, ReminderInterval: 0, NotifyRecovery: true},
	"reboot":   {Enabled: true, ReminderInterval: 0, NotifyRecovery: false},
}

func Default() Config {
	dataDir := "./data"
	return Config{
		Addr:             ":8080",
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "servermonitor.db"),
		LogDir:           filepath.Join(dataDir, "logs"),
		DockerSocket:     "/var/run/docker.sock",
		AuthLogPath:      "/host/var/log/auth.log",
		AuthLogPosition:  filepath.Join(dataDir, "authlog.pos"),
		MetricsInterval:  30,
		SSHCheckInterval: 30,
		InternetInterval: 60,
		ExcludedIPs:      []string{"127.0.0.1", "192.168.0.0/16", "10.0.0.0/8", "172.16.0.0/12"},
		TopProcesses:     5,
		MountPoints:      []MountPoint{{Path: "/", Threshold: 90}},
		CPUThreshold:     90,
		RAMThreshold:     90,
		TempThreshold:    85,
		NotifySSH:        true,
		NotifyReboot:     true,
		AlertSettings:    copySettings(defaultAlertSettings),
		Store:            StoreConfig{Backend: "sqlite", RedisAddr: "localhost:6379"},
	}
}

func copySettings(in map[string]AlertSetting) map[string]AlertSetting {
	out := make(map[string]AlertSetting, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Manager loads config.json, watches it for changes and hands out immutable
// snapshots. Settings changes take effect on the next evaluation cycle.
type Manager struct {
	path string
	v    *viper.Viper

	mu  sync.RWMutex
	cur Config
}

func NewManager(path string) (*Manager, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeFile(path, Default()); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	m := &Manager{path: path, v: v}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reload() error {
	cfg := Default()
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	// Environment variables win over the file for credentials, matching the
	// container deployment where the token is injected as a secret.
	if t := os.Getenv("BOT_TOKEN"); t != "" {
		cfg.BotToken = t
	}
	if id := os.Getenv("CHAT_ID"); id != "" {
		cfg.ChatID = id
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return nil
}

// Watch re-reads the file whenever it changes on disk. onChange may be nil.
func (m *Manager) Watch(onChange func(Config)) {
	m.v.OnConfigChange(func(fsnotify.Event) {
		if err := m.reload(); err != nil {
			return
		}
		if onChange != nil {
			onChange(m.Snapshot())
		}
	})
	m.v.WatchConfig()
}

func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Save writes a full config back to disk (the settings web UI posts here)
// and makes it the current snapshot immediately.
func (m *Manager) Save(cfg Config) error {
	if err := writeFile(m.path, cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return nil
}

func writeFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
