package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/clawdeck/clawdeck/internal/cronjob"
	"github.com/clawdeck/clawdeck/internal/storage"
)

var cronHwd = &CronRunner{}

type CronRunner struct{}

func (r *CronRunner) cmd() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the config file",
	}
	return &cli.Command{
		Name:  "cron",
		Usage: "Inspect scheduled jobs and their run history",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all cron jobs",
				Flags:  []cli.Flag{configFlag},
				Action: r.list,
			},
			{
				Name:      "runs",
				Usage:     "Show recent runs of one job",
				ArgsUsage: "<jobId>",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "max runs to show"},
				},
				Action: r.runs,
			},
		},
	}
}

func openCronStore(cmd *cli.Command) (cronjob.Store, func(), error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cronjob.NewSQLStore(db), func() { db.Close() }, nil
}

func (r *CronRunner) list(ctx context.Context, cmd *cli.Command) error {
	store, closeFn, err := openCronStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	jobs, err := store.ListJobs(ctx, false)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no cron jobs")
		return nil
	}
	for _, j := range jobs {
		state := "enabled"
		if !j.Enabled {
			state = "disabled"
		}
		next := "-"
		if j.NextRunAt != nil {
			next = j.NextRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("#%-5d %-8s %-6s %-20s next=%s %s\n",
			j.ID, state, j.Kind, j.Schedule, next, j.Name)
	}
	return nil
}

func (r *CronRunner) runs(ctx context.Context, cmd *cli.Command) error {
	jobID, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("usage: clawdeck cron runs <jobId>")
	}
	store, closeFn, err := openCronStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	runs, err := store.ListRuns(ctx, jobID, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("#%-5d %-9s %s %6dms %s\n",
			run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"), run.DurationMs, run.Log)
	}
	return nil
}
