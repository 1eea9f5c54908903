package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/storage"
	"github.com/clawdeck/clawdeck/internal/task"
)

var taskHwd = &TaskRunner{}

type TaskRunner struct{}

func (r *TaskRunner) cmd() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the config file",
	}
	return &cli.Command{
		Name:  "task",
		Usage: "Inspect and drive tasks from the command line",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks, optionally filtered by status or project",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{Name: "status", Usage: "filter by status"},
					&cli.StringFlag{Name: "project", Usage: "filter by project"},
				},
				Action: r.list,
			},
			{
				Name:      "add",
				Usage:     "Create a task in the backlog",
				ArgsUsage: "<title>",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "priority", Aliases: []string{"p"}, Usage: "priority 1 (urgent) to 9"},
					&cli.StringFlag{Name: "project", Usage: "project tag"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
				},
				Action: r.add,
			},
			{
				Name:      "action",
				Usage:     "Apply a lifecycle action to a task",
				ArgsUsage: "<id> <action>",
				Flags:     []cli.Flag{configFlag},
				Action:    r.action,
			},
			{
				Name:      "show",
				Usage:     "Show one task in full",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{configFlag},
				Action:    r.show,
			},
		},
	}
}

// openRegistry builds a registry straight over the store; CLI commands talk
// to the database directly, not through a running server.
func openRegistry(cmd *cli.Command) (*task.Registry, func(), error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	registry := task.NewRegistry(task.NewSQLStore(db), nil, config.DispatchConfig{})
	return registry, func() { db.Close() }, nil
}

func (r *TaskRunner) list(ctx context.Context, cmd *cli.Command) error {
	registry, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	filter := task.Filter{Project: cmd.String("project")}
	if s := cmd.String("status"); s != "" {
		status, err := task.ParseStatus(s)
		if err != nil {
			return err
		}
		filter.Status = &status
	}

	tasks, err := registry.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("#%-5d P%d %-10s %s\n", t.ID, t.Priority, colorStatus(t.Status), t.Title)
	}
	return nil
}

func (r *TaskRunner) add(ctx context.Context, cmd *cli.Command) error {
	title := cmd.Args().First()
	if title == "" {
		return fmt.Errorf("usage: clawdeck task add <title>")
	}
	registry, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	t, err := registry.Create(ctx, &task.Task{
		Title:       title,
		Priority:    int(cmd.Int("priority")),
		Project:     cmd.String("project"),
		Description: cmd.String("description"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created task #%d\n", t.ID)
	return nil
}

func (r *TaskRunner) action(ctx context.Context, cmd *cli.Command) error {
	id, err := strconv.ParseInt(cmd.Args().Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("usage: clawdeck task action <id> <action>")
	}
	action, err := task.ParseAction(cmd.Args().Get(1))
	if err != nil {
		return err
	}

	registry, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	t, err := registry.Apply(ctx, id, action, nil)
	if err != nil {
		return err
	}
	fmt.Printf("task #%d is now %s\n", t.ID, colorStatus(t.Status))
	return nil
}

func (r *TaskRunner) show(ctx context.Context, cmd *cli.Command) error {
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("usage: clawdeck task show <id>")
	}
	registry, closeFn, err := openRegistry(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	t, err := registry.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("#%d %s\n", t.ID, t.Title)
	fmt.Printf("  status:   %s\n", colorStatus(t.Status))
	fmt.Printf("  priority: %d\n", t.Priority)
	if t.Project != "" {
		fmt.Printf("  project:  %s\n", t.Project)
	}
	if t.AgentID != "" {
		fmt.Printf("  agent:    %s\n", t.AgentID)
	}
	if t.Description != "" {
		fmt.Printf("  desc:     %s\n", t.Description)
	}
	fmt.Printf("  created:  %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("  started:  %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("  finished: %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  actions:  %v\n", task.ValidActions(t.Status))
	return nil
}

func colorStatus(s task.Status) string {
	switch s {
	case task.StatusRunning:
		return color.GreenString(string(s))
	case task.StatusReview:
		return color.YellowString(string(s))
	case task.StatusFailed, task.StatusCancelled:
		return color.RedString(string(s))
	case task.StatusDone:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}
