package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/tender-automation/dashboard/internal/tui"
)

// TUIAction runs the interactive dashboard.
func TUIAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, true)
	if err != nil {
		return err
	}
	defer app.Close()

	app.StartMetrics(ctx)
	dash, stop, err := app.startDashboard(ctx)
	if err != nil {
		return err
	}
	defer stop()

	return tui.Run(ctx, dash)
}
