package alerts

import (
	"fmt"
	"time"
)

// Key identifies one monitored condition. Keys are stable across restarts:
// "cpu:host", "ram:host", "disk:/data", "temp:host", "ssh:1.2.3.4:root",
// "internet:connection".
type Key string

func DiskKey(mount string) Key { return Key("disk:" + mount) }

func SSHKey(ip, user string) Key { return Key(fmt.Sprintf("ssh:%s:%s", ip, user)) }

const (
	KeyCPU      Key = "cpu:host"
	KeyRAM      Key = "ram:host"
	KeyTemp     Key = "temp:host"
	KeyInternet Key = "internet:connection"
)

// Type returns the alert type portion of the key, used to look up Settings.
func (k Key) Type() string {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return string(k[:i])
		}
	}
	return string(k)
}

// Record is the persisted lifecycle state for one Key.
type Record struct {
	Active           bool      `json:"active"`
	FirstTriggeredAt time.Time `json:"first_triggered_at"`
	LastNotifiedAt   time.Time `json:"last_notified_at"`
	LastValue        float64   `json:"last_value"`
	ReminderCount    int       `json:"reminder_count"`
}

// Settings is the per-type notification policy. ReminderInterval of zero
// means reminders are never sent for that type.
type Settings struct {
	Enabled          bool          `json:"enabled"`
	ReminderInterval time.Duration `json:"reminder_interval"`
	NotifyRecovery   bool          `json:"notify_recovery"`
}

type Kind int

const (
	KindNone Kind = iota
	KindInitial
	KindReminder
	KindRecovery
)

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindReminder:
		return "reminder"
	case KindRecovery:
		return "recovery"
	default:
		return "none"
	}
}

// Notification is the Evaluator's decision for one evaluation. Kind is
// KindNone when nothing should be sent. The remaining fields carry the
// context the dispatcher renders into the message.
type Notification struct {
	Kind          Kind
	Key           Key
	Message       string
	Value         float64
	Threshold     float64
	ReminderCount int
	// Duration of the problem, set for KindRecovery.
	Duration time.Duration
}
