package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/docker"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/notifier"
)

const helpText = `Available commands:

/start - Start the bot
/help - Show this help message
/resources [cpu|ram|disk|net] - Show system resources
/docker [start|stop|restart|inspect <id>] - Manage Docker containers
/ack [alert-key] - List or acknowledge active alerts
`

// Bot serves operator commands over getUpdates long polling. Only messages
// from the configured chat are honored.
type Bot struct {
	tg     *notifier.Telegram
	cfg    *config.Manager
	eval   *alerts.Evaluator
	docker *docker.Client
	log    *zap.Logger

	offset int64
}

func New(tg *notifier.Telegram, cfg *config.Manager, eval *alerts.Evaluator, dc *docker.Client, logger *zap.Logger) *Bot {
	return &Bot{tg: tg, cfg: cfg, eval: eval, docker: dc, log: logger}
}

// Run polls for commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			b.log.Info("bot stopped")
			return
		}
		updates, err := b.tg.GetUpdates(ctx, b.offset, 30*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				b.log.Info("bot stopped")
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			b.handleMessage(ctx, u.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *notifier.Message) {
	cfg := b.cfg.Snapshot()
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if cfg.ChatID != "" && chatID != cfg.ChatID {
		b.log.Warn("message from unauthorized chat", zap.String("chat_id", chatID))
		return
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return
	}
	// Commands in groups arrive as /cmd@BotName.
	cmd := fields[0]
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	var reply string
	switch cmd {
	case "/start":
		reply = "Welcome to the Server Monitor bot!\n\n" +
			"You will receive notifications when resource thresholds are crossed, " +
			"SSH logins are detected or the server reboots.\n\n" +
			"Use /resources to check the current state\nUse /help to see all commands"
	case "/help":
		reply = helpText
	case "/resources":
		reply = b.resources(ctx, cfg, args)
	case "/docker":
		reply = b.dockerCommand(ctx, args)
	case "/ack":
		reply = b.ack(ctx, args)
	default:
		reply = "Unknown command. Use /help."
	}
	if reply == "" {
		return
	}
	if err := b.tg.SendTo(ctx, chatID, reply); err != nil {
		b.log.Warn("bot reply failed", zap.String("cmd", cmd), zap.Error(err))
	}
}

func (b *Bot) resources(ctx context.Context, cfg config.Config, args []string) string {
	which := "all"
	if len(args) > 0 {
		which = strings.ToLower(args[0])
	}
	switch which {
	case "cpu":
		return CPUReport(ctx)
	case "ram":
		return RAMReport(ctx)
	case "disk":
		return DiskReport(ctx, cfg.MountPoints)
	case "net":
		return NetworkReport(ctx)
	default:
		return OverviewReport(ctx, cfg.MountPoints)
	}
}

func (b *Bot) dockerCommand(ctx context.Context, args []string) string {
	if b.docker == nil {
		return "Docker integration is not configured."
	}
	if len(args) == 0 || args[0] == "list" {
		containers, err := b.docker.ListContainers(ctx)
		if err != nil {
			return fmt.Sprintf("Error listing containers: %v", err)
		}
		if len(containers) == 0 {
			return "No containers found."
		}
		var sb strings.Builder
		sb.WriteString("*Docker containers*\n")
		for _, c := range containers {
			id := c.ID
			if len(id) > 12 {
				id = id[:12]
			}
			fmt.Fprintf(&sb, "\n`%s` *%s*: %s (%s)", id, c.Name(), c.State, c.Status)
		}
		return sb.String()
	}
	if len(args) < 2 {
		return "Usage: /docker [start|stop|restart|inspect <id>]"
	}
	action, id := args[0], args[1]
	var err error
	switch action {
	case "start":
		err = b.docker.StartContainer(ctx, id)
	case "stop":
		err = b.docker.StopContainer(ctx, id)
	case "restart":
		err = b.docker.RestartContainer(ctx, id)
	case "inspect":
		info, ierr := b.docker.InspectContainer(ctx, id)
		if ierr != nil {
			return fmt.Sprintf("Error: %v", ierr)
		}
		return fmt.Sprintf("*%s*\nStatus: %s\nStarted: %s\nRestarts: %d",
			strings.TrimPrefix(info.Name, "/"), info.State.Status, info.State.StartedAt, info.RestartCount)
	default:
		return "Usage: /docker [start|stop|restart|inspect <id>]"
	}
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Container `%s`: %s OK", id, action)
}

// ack without arguments lists active alerts; with a key it clears that
// alert's active flag without a recovery notice.
func (b *Bot) ack(ctx context.Context, args []string) string {
	if len(args) == 0 {
		keys, err := b.eval.ActiveKeys(ctx)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		if len(keys) == 0 {
			return "No active alerts."
		}
		var sb strings.Builder
		sb.WriteString("*Active alerts*\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n`%s`", k)
		}
		sb.WriteString("\n\nUse /ack <key> to acknowledge one.")
		return sb.String()
	}
	key := alerts.Key(args[0])
	if err := b.eval.Acknowledge(ctx, key); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Alert `%s` acknowledged.", key)
}
