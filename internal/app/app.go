package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/bot"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/collector"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/config"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/docker"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/metrics"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/monitor"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/notifier"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/store/memory"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/store/redisstore"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/store/sqlite"
	"github.com/savergiggio/Telgram-Server-Monitoring/internal/web"
)

// App ties the config manager, alert store, evaluator, collectors,
// telegram bot and the http server together.
type App struct {
	cfg *config.Manager
	log *zap.Logger

	store   alerts.Store
	closer  io.Closer
	eval    *alerts.Evaluator
	notify  *notifier.Telegram
	monitor *monitor.Monitor
	bot     *bot.Bot
	web     *web.Server

	httpSrv *http.Server
}

func New(cfg *config.Manager, logger *zap.Logger) (*App, error) {
	snap := cfg.Snapshot()
	if err := os.MkdirAll(snap.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, closer, err := openStore(snap)
	if err != nil {
		return nil, err
	}

	stats := metrics.NewDefault()
	eval := alerts.NewEvaluator(store, logger.Named("alerts"))
	tg := notifier.NewTelegram(snap.BotToken, snap.ChatID)
	disp := notifier.NewDispatcher(tg, logger.Named("notifier"), stats)

	dc := docker.NewClient(snap.DockerSocket)
	if err := dc.Ping(context.Background()); err != nil {
		logger.Warn("docker socket unreachable, container commands disabled", zap.Error(err))
		dc = nil
	}

	mon := monitor.New(cfg, eval, disp,
		collector.NewHost(),
		collector.NewAuthLogWatcher(snap.AuthLogPath, snap.AuthLogPosition, logger.Named("authlog")),
		collector.NewInternetChecker(),
		logger.Named("monitor"), stats)

	w := web.NewServer(cfg, store, eval, tg, logger.Named("web"))

	app := &App{
		cfg:     cfg,
		log:     logger,
		store:   store,
		closer:  closer,
		eval:    eval,
		notify:  tg,
		monitor: mon,
		bot:     bot.New(tg, cfg, eval, dc, logger.Named("bot")),
		web:     w,
	}
	app.httpSrv = &http.Server{Addr: snap.Addr, Handler: w.Routes()}

	// Settings saved through the web UI take effect without a restart.
	cfg.Watch(func(c config.Config) {
		tg.Update(c.BotToken, c.ChatID)
		logger.Info("configuration reloaded")
	})
	return app, nil
}

func openStore(cfg config.Config) (alerts.Store, io.Closer, error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		s, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, nil
	case "redis":
		s, err := redisstore.Open(redisstore.Config{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, s, nil
	case "memory":
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", zap.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.httpSrv.Shutdown(context.Background())
	})
	g.Go(func() error {
		a.monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.bot.Run(ctx)
		return nil
	})

	err := g.Wait()
	if a.closer != nil {
		if cerr := a.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
