package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tender-automation/dashboard/internal/devserver"
)

// Version is reported by the devserver banner and /api/health.
var Version = "dev"

// DevServerAction runs the local stand-in backend until interrupted.
func DevServerAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(cmd, false)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := devserver.DefaultConfig()
	cfg.Version = Version
	cfg.Binary = cmd.Bool("binary")
	cfg.FailStart = cmd.String("fail-start")
	cfg.LegacySourceKey = cmd.Bool("legacy-sources")
	cfg.RequestLogging = cmd.Bool("request-logging")
	if d := cmd.Duration("step-delay"); d > 0 {
		cfg.StepDelay = d
	}

	listen := cmd.String("listen")
	srv := devserver.New(cfg, app.Logger)
	fmt.Fprint(cmd.Root().Writer, devserver.Banner(Version, listen, cfg))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(listen) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
