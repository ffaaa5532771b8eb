package main

import (
	"fmt"
	"os/signal"

	"github.com/nvandessel/usersim/internal/panel"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate active users until interrupted",
		Long: `Start simulating and print a notification for every step until Ctrl-C.
The first step runs immediately, then one every interval. Steps still in
flight when the loop stops are waited for and reported.

Examples:
  usersim run --active 100 --percent 5
  usersim run --active 10 --interval 1s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval < 0 {
				return fmt.Errorf("interval must be positive, got %v", interval)
			}

			a, err := newApp(cmd, appOptions{
				sinks:    []panel.Notifier{&printSink{w: cmd.OutOrStdout(), jsonOut: jsonOut}},
				interval: interval,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			a.load(cmd)
			applyPanelFlags(cmd, a.panel)

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			st := a.panel.State()
			if err := st.StartErr(); err != nil {
				return fmt.Errorf("cannot start simulation: %w", err)
			}
			// Written before the loop starts logging to the same stream.
			fmt.Fprintf(cmd.ErrOrStderr(), "Simulating %d of %d users every %v. Press Ctrl-C to stop.\n",
				st.TargetActiveUsers, st.TotalUsers, a.panel.Interval())
			a.panel.Start()

			<-ctx.Done()
			a.panel.Stop()
			return nil
		},
	}
	addPanelFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Time between steps (default: config)")
	return cmd
}
