// Package serve runs the tester against the built-in replay host with the
// HTTP API, metrics and MQTT publishing.
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tphakala/parrot-tester/internal/app"
	"github.com/tphakala/parrot-tester/internal/logger"
)

type options struct {
	listen string
	replay string
	speed  float64
	loop   bool
}

// Command creates the serve command.
func Command(ctx *app.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tester with the HTTP API",
		Long:  "Start the event loop, wrap the replay host's delegate and serve the display state, captures and statistics over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cmd, ctx, &opts)
			return run(cmd.Context(), ctx)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address of the HTTP API")
	cmd.Flags().StringVar(&opts.replay, "replay", "", "Recording to play into the host once it is ready")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1, "Playback speed multiplier")
	cmd.Flags().BoolVar(&opts.loop, "loop", false, "Restart playback when the recording ends")

	return cmd
}

// applyFlags overrides settings with the flags given on the command line.
func applyFlags(cmd *cobra.Command, ctx *app.Context, opts *options) {
	s := ctx.Settings
	if cmd.Flags().Changed("listen") {
		s.WebServer.Enabled = true
		s.WebServer.Listen = opts.listen
	}
	if cmd.Flags().Changed("replay") {
		s.Replay.Path = opts.replay
	}
	if cmd.Flags().Changed("speed") {
		s.Replay.Speed = opts.speed
	}
	if cmd.Flags().Changed("loop") {
		s.Replay.Loop = opts.loop
	}
}

func run(parent context.Context, ctx *app.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	runCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := ctx.Log()
	a, err := app.New(ctx.Settings, afero.NewOsFs(), ctx.Build.Version(), log)
	if err != nil {
		return err
	}

	log.Info("parrot tester starting",
		logger.String("version", ctx.Build.Version()),
		logger.String("session_id", a.Session.ID()),
		logger.String("patterns", ctx.Settings.Patterns.Path))

	if err := a.Run(runCtx); err != nil {
		return err
	}
	log.Info("parrot tester stopped")
	return nil
}
