package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hluisi/pausemon/store"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old events and their captures now",
	Long: `The daemon prunes on its own schedule; this forces a pass immediately.
Without --older-than the configured retention window applies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		age := pruneOlderThan
		if age <= 0 {
			age = time.Duration(cfg.RetentionDays) * 24 * time.Hour
		}
		n, err := st.PruneOlderThan(cmd.Context(), age)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d events older than %s\n", n, age)
		return nil
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0,
		"delete events older than this (default: configured retention)")
	rootCmd.AddCommand(pruneCmd)
}
