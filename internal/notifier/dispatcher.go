package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/metrics"
)

// Dispatcher renders evaluator decisions into Telegram messages. Delivery
// failures are logged and counted, never propagated back into alert state:
// by the time a notification reaches the dispatcher the record transition
// has already been committed.
type Dispatcher struct {
	tg    *Telegram
	log   *zap.Logger
	stats *metrics.Metrics
	sleep func(time.Duration)
}

func NewDispatcher(tg *Telegram, logger *zap.Logger, stats *metrics.Metrics) *Dispatcher {
	return &Dispatcher{tg: tg, log: logger, stats: stats, sleep: time.Sleep}
}

// Dispatch sends one notification, retrying transient transport failures a
// few times before giving up.
func (d *Dispatcher) Dispatch(ctx context.Context, n alerts.Notification) {
	if n.Kind == alerts.KindNone {
		return
	}
	msg := Render(n)

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = d.tg.Send(ctx, msg)
		if err == nil {
			d.stats.NotificationsSent.WithLabelValues(n.Kind.String()).Inc()
			d.log.Info("notification sent",
				zap.String("key", string(n.Key)),
				zap.String("kind", n.Kind.String()),
			)
			return
		}
		if attempt < 3 {
			d.sleep(time.Duration(attempt) * 300 * time.Millisecond)
		}
	}
	d.stats.NotificationsFailed.WithLabelValues(n.Kind.String()).Inc()
	d.log.Warn("notification delivery failed",
		zap.String("key", string(n.Key)),
		zap.String("kind", n.Kind.String()),
		zap.Error(err),
	)
}

// Render produces the Markdown message body for a notification.
func Render(n alerts.Notification) string {
	switch n.Kind {
	case alerts.KindReminder:
		return fmt.Sprintf("🔄 REMINDER (%d) - %s", n.ReminderCount, n.Message)
	case alerts.KindRecovery:
		return fmt.Sprintf("✅ RESOLVED - %s (duration: %s)", n.Message, FormatDuration(n.Duration))
	default:
		return n.Message
	}
}

// FormatDuration renders a duration as "2h 3m 4s", omitting leading zero
// units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var b strings.Builder
	if hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	if minutes > 0 || hours > 0 {
		fmt.Fprintf(&b, "%dm ", minutes)
	}
	fmt.Fprintf(&b, "%ds", seconds)
	return b.String()
}
