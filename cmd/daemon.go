package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hluisi/pausemon/engine"
	"github.com/hluisi/pausemon/store"
)

var daemonVerbose bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the monitoring daemon",
	Long: `Starts the sampling loop in the foreground. SIGINT or SIGTERM stops it
cleanly: the current tick finishes, pending events are flushed, and the
socket closes. Use launchd or a shell & to background it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if daemonVerbose {
			level = slog.LevelDebug
		}
		log := newLogger(level)

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return engine.New(cfg, st, log).Run(ctx)
	},
}

func init() {
	daemonCmd.Flags().BoolVarP(&daemonVerbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(daemonCmd)
}
