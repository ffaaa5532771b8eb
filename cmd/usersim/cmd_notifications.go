package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nvandessel/usersim/internal/logging"
	"github.com/nvandessel/usersim/internal/notify"
	"github.com/spf13/cobra"
)

func newNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Manage the notification inbox",
		Long: `List or clear the notifications recorded in .usersim/usersim.db.

Examples:
  usersim notifications list             # 20 most recent
  usersim notifications list --limit 0   # everything
  usersim notifications clear`,
	}
	cmd.AddCommand(
		newNotificationsListCmd(),
		newNotificationsClearCmd(),
	)
	return cmd
}

func openInbox(cmd *cobra.Command) (*notify.Inbox, error) {
	logger := logging.NewLogger("info", cmd.ErrOrStderr())
	inbox, err := notify.OpenInbox(usersimDir(cmd), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open inbox: %w", err)
	}
	return inbox, nil
}

func newNotificationsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			inbox, err := openInbox(cmd)
			if err != nil {
				return err
			}
			defer inbox.Close()

			records, err := inbox.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOut {
				if records == nil {
					records = []notify.Record{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"notifications": records,
					"count":         len(records),
				})
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notifications.")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s  %s: %s\n",
					r.Time.Local().Format(time.DateTime), r.Kind, r.Title, r.Description)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum notifications to show (0 for all)")
	return cmd
}

func newNotificationsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			inbox, err := openInbox(cmd)
			if err != nil {
				return err
			}
			defer inbox.Close()

			n, err := inbox.Clear(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status":  "cleared",
					"deleted": n,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d notifications.\n", n)
			return nil
		},
	}
}
