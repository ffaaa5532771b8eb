package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/nvandessel/usersim/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage usersim configuration",
		Long: `View and modify usersim configuration settings.

Configuration is stored in ~/.usersim/config.yaml.

Examples:
  usersim config list                                   # Show all settings
  usersim config get backend.base_url                   # Get a specific setting
  usersim config set backend.base_url http://localhost:8080
  usersim config set backend.api_token '${DEV_TOOLS_TOKEN}'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"backend.base_url",
	"backend.api_token",
	"backend.timeout",
	"simulation.interval",
	"simulation.default_change_percent",
	"simulation.overlap",
	"server.addr",
	"server.open_browser",
	"notify.desktop",
	"notify.inbox",
	"logging.level",
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				// Redact API token before JSON serialization to prevent leakage
				redacted := *cfg
				redacted.Backend.APIToken = cfg.Backend.RedactedAPIToken()
				return json.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration (~/.usersim/config.yaml):")
			fmt.Fprintln(out)
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				printConfigValue(out, key, value)
			}
			return nil
		},
	}
}

func printConfigValue(w io.Writer, key string, value any) {
	if s, ok := value.(string); ok && s == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-35s %v\n", key+":", value)
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"error": "key not found",
						"key":   key,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Unknown configuration key: %s\n", key)
				}
				return nil
			}

			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			path, err := config.Path()
			if err != nil {
				return err
			}
			// Edit the file itself, not the env-merged view.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
						"error": err.Error(),
						"key":   key,
					})
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Error: %v\n", err)
				}
				return nil
			}

			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if key == "backend.api_token" {
				value = cfg.Backend.RedactedAPIToken()
			}
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			}
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.UsersimConfig, key string) (any, bool) {
	switch key {
	case "backend.base_url":
		return cfg.Backend.BaseURL, true
	case "backend.api_token":
		return cfg.Backend.RedactedAPIToken(), true
	case "backend.timeout":
		return cfg.Backend.Timeout.String(), true
	case "simulation.interval":
		return cfg.Simulation.Interval.String(), true
	case "simulation.default_change_percent":
		return cfg.Simulation.DefaultChangePercent, true
	case "simulation.overlap":
		return cfg.Simulation.Overlap, true
	case "server.addr":
		return cfg.Server.Addr, true
	case "server.open_browser":
		return cfg.Server.OpenBrowser, true
	case "notify.desktop":
		return cfg.Notify.Desktop, true
	case "notify.inbox":
		return cfg.Notify.Inbox, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key and
// validates the result.
func setConfigValue(cfg *config.UsersimConfig, key, value string) error {
	updated := *cfg
	switch key {
	case "backend.base_url":
		updated.Backend.BaseURL = value
	case "backend.api_token":
		updated.Backend.APIToken = value
	case "backend.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		updated.Backend.Timeout = d
	case "simulation.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		updated.Simulation.Interval = d
	case "simulation.default_change_percent":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid percentage: %s", value)
		}
		updated.Simulation.DefaultChangePercent = f
	case "simulation.overlap":
		updated.Simulation.Overlap = value
	case "server.addr":
		updated.Server.Addr = value
	case "server.open_browser":
		updated.Server.OpenBrowser = value == "true" || value == "1"
	case "notify.desktop":
		updated.Notify.Desktop = value == "true" || value == "1"
	case "notify.inbox":
		updated.Notify.Inbox = value == "true" || value == "1"
	case "logging.level":
		updated.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	if err := updated.Validate(); err != nil {
		return err
	}
	*cfg = updated
	return nil
}
