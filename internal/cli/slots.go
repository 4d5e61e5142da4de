package cli

import (
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/schedule"
	"github.com/spf13/cobra"
)

func newSlotsCmd() *cobra.Command {
	var (
		expr     string
		tz       string
		from     string
		to       string
		duration int
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Preview the starts a recurrence expression yields",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now().UTC()
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				start = t
			}
			end := start.Add(7 * 24 * time.Hour)
			if to != "" {
				t, err := time.Parse(time.RFC3339, to)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				end = t
			}

			finder := schedule.NewSlotFinder(schedule.NewCronExpander(), limit)
			slots, err := finder.Slots(&entity.TimeSlotTemplate{
				RecurrenceExpr:  expr,
				TimeZone:        tz,
				DurationMinutes: duration,
			}, start, end)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range slots {
				fmt.Fprintf(out, "%s\t%s\n", s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "expr", "", "recurrence expression, e.g. \"0 18 * * MON,WED\"")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA time zone the expression is evaluated in")
	cmd.Flags().StringVar(&from, "from", "", "window start, RFC3339 (default now)")
	cmd.Flags().StringVar(&to, "to", "", "window end, RFC3339 (default from + 7 days)")
	cmd.Flags().IntVar(&duration, "duration", 60, "slot length in minutes")
	cmd.Flags().IntVar(&limit, "limit", schedule.DefaultMaxSlots, "maximum number of slots")
	_ = cmd.MarkFlagRequired("expr")

	return cmd
}
