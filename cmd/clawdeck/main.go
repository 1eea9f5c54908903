package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/clawdeck/clawdeck/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "clawdeck",
		Usage: "Task deck for agent fleets: lifecycle, heartbeats, checklists, and cron",
		Commands: []*cli.Command{
			serveHwd.cmd(),
			taskHwd.cmd(),
			cronHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
