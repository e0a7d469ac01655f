package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hluisi/pausemon/model"
	"github.com/hluisi/pausemon/store"
)

var (
	eventsLimit      int
	eventsTier       int
	eventsPauses     bool
	eventsUnreviewed bool
	eventsSince      time.Duration
	eventsJSON       bool
)

var (
	tierElevatedColor = color.New(color.FgYellow)
	tierCriticalColor = color.New(color.FgRed, color.Bold)
	pauseColor        = color.New(color.FgMagenta, color.Bold)
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded episodes and pauses",
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

		filter := store.EventFilter{
			Limit:      eventsLimit,
			Unreviewed: eventsUnreviewed,
		}
		if eventsPauses {
			filter.Kind = model.EventPause
		}
		if eventsTier != 0 {
			filter.Tier = model.Tier(eventsTier)
		}
		if eventsSince > 0 {
			filter.Since = time.Now().Add(-eventsSince)
		}

		events, err := st.Events(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if eventsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("no events recorded")
			return nil
		}
		printEventTable(events)
		return nil
	},
}

func printEventTable(events []model.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIER\tSTART\tDURATION\tPEAK\tCATEGORIES\tREVIEWED")
	for _, e := range events {
		reviewed := ""
		if e.Reviewed {
			reviewed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(e.ID),
			kindLabel(e),
			tierLabel(e.Tier),
			humanize.Time(e.StartTime),
			e.Duration.Round(time.Millisecond),
			e.PeakScore,
			e.CategorySummary(),
			reviewed,
		)
	}
	w.Flush()
}

func kindLabel(e model.Event) string {
	if e.Kind == model.EventPause {
		return pauseColor.Sprint("pause")
	}
	return string(e.Kind)
}

func tierLabel(t model.Tier) string {
	switch t {
	case model.TierElevated:
		return tierElevatedColor.Sprint(t.String())
	case model.TierCritical:
		return tierCriticalColor.Sprint(t.String())
	default:
		return t.String()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var showCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Show one event in full, including its top rogues",
	Args:  cobra.ExactArgs(1),
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

		id, err := st.ResolveEventID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		events, err := st.Events(cmd.Context(), store.EventFilter{})
		if err != nil {
			return err
		}
		var evt *model.Event
		for i := range events {
			if events[i].ID == id {
				evt = &events[i]
				break
			}
		}
		if evt == nil {
			return fmt.Errorf("no event with id %s", id)
		}

		fmt.Printf("Event    %s\n", evt.ID)
		fmt.Printf("Kind     %s\n", kindLabel(*evt))
		fmt.Printf("Tier     %s\n", tierLabel(evt.Tier))
		fmt.Printf("Start    %s (%s)\n", evt.StartTime.Format(time.RFC3339), humanize.Time(evt.StartTime))
		fmt.Printf("Duration %s\n", evt.Duration.Round(time.Millisecond))
		fmt.Printf("Peak     %d\n", evt.PeakScore)

		if len(evt.Rogues) > 0 {
			fmt.Println("\nTop rogues at peak:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  SCORE\tPID\tCOMMAND\tSTATE\tCPU%\tMEM\tCATEGORIES")
			for _, r := range evt.Rogues {
				fmt.Fprintf(w, "  %d\t%d\t%s\t%s\t%.1f\t%s\t%s\n",
					r.Score, r.PID, r.Command, r.State, r.CPUPct,
					humanize.IBytes(r.RSS), joinCategories(r.Categories))
			}
			w.Flush()
		}

		if blob, err := st.Capture(cmd.Context(), evt.ID); err == nil {
			fmt.Printf("\nForensic capture available (%s); dump with --capture\n",
				humanize.IBytes(uint64(len(blob))))
			if showCapture {
				os.Stdout.Write(blob)
				fmt.Println()
			}
		}
		return nil
	},
}

var showCapture bool

func joinCategories(cats []model.Category) string {
	out := ""
	for i, c := range cats {
		if i > 0 {
			out += ","
		}
		out += string(c)
	}
	return out
}

var reviewCmd = &cobra.Command{
	Use:   "review <event-id>",
	Short: "Mark an event as reviewed",
	Args:  cobra.ExactArgs(1),
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

		id, err := st.ResolveEventID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := st.MarkReviewed(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("marked %s reviewed\n", shortID(id))
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "max events to list")
	eventsCmd.Flags().IntVar(&eventsTier, "tier", 0, "filter by tier (2 or 3)")
	eventsCmd.Flags().BoolVar(&eventsPauses, "pauses", false, "confirmed pauses only")
	eventsCmd.Flags().BoolVar(&eventsUnreviewed, "unreviewed", false, "unreviewed events only")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "events newer than this (e.g. 24h)")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "JSON output")
	showCmd.Flags().BoolVar(&showCapture, "capture", false, "dump the forensic capture bundle")
	eventsCmd.AddCommand(showCmd, reviewCmd)
	rootCmd.AddCommand(eventsCmd)
}
