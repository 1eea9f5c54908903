package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/clawdeck/clawdeck/internal/checklist"
	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/cronjob"
	"github.com/clawdeck/clawdeck/internal/heartbeat"
	"github.com/clawdeck/clawdeck/internal/notify"
	"github.com/clawdeck/clawdeck/internal/pkg/logs"
	"github.com/clawdeck/clawdeck/internal/server"
	"github.com/clawdeck/clawdeck/internal/storage"
	"github.com/clawdeck/clawdeck/internal/task"
)

var serveHwd = &ServeRunner{}

type ServeRunner struct{}

func (r *ServeRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the clawdeck server with the heartbeat monitor and cron scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
			},
		},
		Action: r.run,
	}
}

func (r *ServeRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := storage.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	logs.CtxInfo(ctx, "booting clawdeck, store driver=%s", db.Driver())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := task.NewRegistry(task.NewSQLStore(db), notify.FromConfig(cfg.Notify), cfg.Dispatch)
	steps := checklist.NewEngine(checklist.NewSQLStore(db))
	monitor := heartbeat.NewMonitor(registry, heartbeat.NewSQLZombieStore(db), cfg.Monitor)
	scheduler := cronjob.NewScheduler(cronjob.NewSQLStore(db), cronjob.NewTaskLauncher(registry), cfg.Scheduler)

	if cfg.MonitorEnabled() {
		monitor.Start(ctx)
		defer monitor.Stop()
	}
	if cfg.SchedulerEnabled() {
		scheduler.Start(ctx)
		defer scheduler.Stop(context.Background())
	}

	srv := server.New(cfg.Server, registry, steps, monitor, scheduler)
	go srv.Run()

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping...")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logs.CtxError(ctx, "shutdown server: %v", err)
	}
	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, nil
	}
	return config.Load(path)
}

func initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}
