// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatsapp/internal/config"
)

func newConfigCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration (token redacted)",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), a.Config.String())
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one value, e.g. session.models",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if args[0] == "api.token" {
					return fmt.Errorf("api.token is not printed; see the config file")
				}
				v, err := a.Config.Get(args[0])
				if err != nil {
					return err
				}
				if list, ok := v.([]string); ok {
					v = strings.Join(list, ",")
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one value in the config file",
			Long:  "Change one value in the config file. Lists are comma separated. Valid keys:\n  " + strings.Join(config.GetAllKeys(), "\n  "),
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := a.fileConfig()
				if err != nil {
					return err
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.SaveTo(cfg, a.path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], a.path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), a.path)
			},
		},
	)
	return cmd
}

// fileConfig loads the config file alone, without environment overrides,
// so that saving it does not persist them.
func (a *App) fileConfig() (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(a.path); err != nil {
		return cfg, nil
	}
	var err error
	if strings.HasSuffix(a.path, ".json") {
		err = config.LoadJSON(cfg, a.path)
	} else {
		err = config.LoadTOML(cfg, a.path)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
