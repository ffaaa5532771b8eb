package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the panel for the configured backend",
		Long: `Load the total user count from the backend and show the panel as it
would first render: no controls when the backend has no users.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			a.load(cmd)
			v := a.panel.View()

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend: %s\n\n", a.cfg.Backend.BaseURL)
			fmt.Fprint(cmd.OutOrStdout(), v.Text())
			return nil
		},
	}
}
