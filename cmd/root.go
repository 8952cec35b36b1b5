package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/parrot-tester/cmd/replay"
	"github.com/tphakala/parrot-tester/cmd/serve"
	"github.com/tphakala/parrot-tester/cmd/version"
	"github.com/tphakala/parrot-tester/internal/app"
	"github.com/tphakala/parrot-tester/internal/conf"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/telemetry"
)

// rootFlags are global overrides applied on top of the loaded settings.
type rootFlags struct {
	debug    bool
	patterns string
}

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "parrot-tester",
		Short:         "Diagnostic overlay for sound pattern detection",
		Long:          "Records every frame a detection delegate sees, segments detections into captures and keeps per-pattern statistics.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config.yaml (searches default locations when empty)")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&flags.patterns, "patterns", "", "Path to the pattern configuration")

	versionCmd := version.Command(ctx)
	rootCmd.AddCommand(
		serve.Command(ctx),
		replay.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// The version command runs without configuration.
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(ctx, &flags)
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush()
		return ctx.Logger.Close()
	}

	return rootCmd
}

// initialize loads settings and sets up logging and telemetry before any
// subcommand runs.
func initialize(ctx *app.Context, flags *rootFlags) error {
	settings, err := conf.Load(ctx.ConfigFile)
	if err != nil {
		return err
	}
	if flags.debug {
		settings.Debug = true
		settings.Main.Log.DefaultLevel = string(logger.LogLevelDebug)
	}
	if flags.patterns != "" {
		settings.Patterns.Path = flags.patterns
	}
	ctx.Settings = settings

	cl, err := logger.NewCentralLogger(&settings.Main.Log)
	if err != nil {
		return err
	}
	logger.SetGlobal(cl)
	ctx.Logger = cl

	return telemetry.InitSentry(&settings.Sentry, ctx.Build.Version(), ctx.Log())
}
