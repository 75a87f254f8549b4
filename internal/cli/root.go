// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatsapp/internal/config"
)

// App carries what every command needs: the configuration and the streams
// to talk to the user on.
type App struct {
	Version string

	// ConfigPath overrides the config file location (--config).
	ConfigPath string
	// Debug turns on per-token and per-frame logging (--debug).
	Debug bool

	Config *config.Config

	In  io.Reader
	Out io.Writer
	Err io.Writer

	path   string
	logger *log.Logger
}

// NewRootCmd builds the chatsapp command tree on the process streams.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(&App{Version: version, In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
}

func newRootCmd(a *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chatsapp",
		Short:         "Chat with several models side by side",
		Long:          "chatsapp sends each message to several models at once and streams their replies in parallel.",
		Version:       a.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	rootCmd.SetIn(a.In)
	rootCmd.SetOut(a.Out)
	rootCmd.SetErr(a.Err)

	rootCmd.PersistentFlags().StringVar(&a.ConfigPath, "config", "", "config file (default ~/.chatsapp/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&a.Debug, "debug", false, "log every frame and token to stderr")

	rootCmd.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newConversationsCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

// Execute runs the command tree and reports a failure on stderr.
// It returns the process exit code.
func Execute(version string) int {
	rootCmd := NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// loadConfig reads the config file when it exists and falls back to the
// defaults otherwise. Environment overrides always apply.
func (a *App) loadConfig() error {
	path := a.ConfigPath
	if path == "" {
		var err error
		if path, err = config.ActivePath(); err != nil {
			return err
		}
	}
	a.path = path

	var cfg *config.Config
	if _, statErr := os.Stat(path); statErr == nil {
		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if a.Debug {
		cfg.Debug = true
	}
	a.Config = cfg
	config.SetGlobal(cfg)

	a.logger = log.New(io.Discard, "", 0)
	if cfg.Debug {
		a.logger = log.New(a.Err, "chatsapp ", log.LstdFlags|log.Lmicroseconds)
	}
	return nil
}
