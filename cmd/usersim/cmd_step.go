package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/usersim/internal/panel"
	"github.com/spf13/cobra"
)

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run a single simulation step",
		Long: `Run one simulation step with the given settings and print its
notification.

Examples:
  usersim step                          # All users, default percentage
  usersim step --active 50 --percent 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			a.load(cmd)
			if st := a.panel.State(); !st.HasControls() {
				return st.StartErr()
			}
			applyPanelFlags(cmd, a.panel)

			n, err := a.panel.Step(cmd.Context())
			if err != nil {
				return fmt.Errorf("simulation step: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"notification": n,
					"view":         a.panel.View(),
				})
			}
			printNotification(cmd.OutOrStdout(), n, false)
			if n.Kind == panel.KindError {
				return fmt.Errorf("backend reported an error")
			}
			return nil
		},
	}
	addPanelFlags(cmd)
	return cmd
}
