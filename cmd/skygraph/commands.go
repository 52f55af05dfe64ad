package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/skygraph/internal/core/observability/log"
	"github.com/zeusync/skygraph/internal/injector"
	"github.com/zeusync/skygraph/internal/stream"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine and serve the renderer feed",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var (
	snapshotAt     string
	snapshotIndent bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Compute one frame and print it as a full feed frame",
	Long: `Compute a single frame for the configured scene and print it in the
feed's JSON format. Without --at the configured clock start is used.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and scene description",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotAt, "at", "", "instant to render, RFC 3339")
	snapshotCmd.Flags().BoolVar(&snapshotIndent, "indent", false, "indent the JSON output")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Logger.Info("Starting skygraph",
		log.String("addr", cfg.Server.Addr),
		log.Int("fps", cfg.Engine.FPS),
		log.Float64("warp", cfg.Clock.Warp),
		log.Int("nodes", app.Graph.Len()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Engine.Run(ctx) })
	g.Go(func() error { return app.Server.Run(ctx) })

	err = g.Wait()
	if err != nil {
		app.Logger.Error("skygraph stopped", log.Error(err))
	} else {
		app.Logger.Info("skygraph stopped")
	}
	return err
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if snapshotAt != "" {
		at, err := time.Parse(time.RFC3339, snapshotAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		cfg.Clock.Start = at
	}
	cfg.Log.Level = "error"

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	instant := app.Clock.Now()
	report, err := app.Engine.Step(instant)
	if err != nil {
		return err
	}
	for _, te := range report.Errors {
		fmt.Fprintln(cmd.ErrOrStderr(), "skipped:", te)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if snapshotIndent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(stream.FullFrame(1, instant, app.Engine.Snapshot()))
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.Level = "error"
	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report, _ := app.Engine.Step(app.Clock.Now())
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, %d skipped at %s\n",
		app.Graph.Len(), report.Skipped, app.Clock.Now().Format(time.RFC3339))
	return report.Err()
}
