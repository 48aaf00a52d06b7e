// Package commands implements the schedctl command tree.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"schedbot/cmd/schedctl/output"
	"schedbot/internal/clock"
	"schedbot/internal/config"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

// Opener returns the store a command operates on.
type Opener func(ctx context.Context) (storage.Store, error)

type cli struct {
	cfgPath string
	dotenv  string
	jsonOut bool

	out   io.Writer
	open  Opener
	clock clock.Clock
}

func (c *cli) print() output.Printer { return output.Printer{W: c.out} }

func (c *cli) emitJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withStore opens the store, runs fn and closes it.
func (c *cli) withStore(cmd *cobra.Command, fn func(ctx context.Context, st storage.Store) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	st, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(ctx, st)
}

// openFromConfig reads only the storage section; a bot token is not needed.
func (c *cli) openFromConfig(ctx context.Context) (storage.Store, error) {
	if err := config.LoadDotEnv(c.dotenv); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Decode(c.cfgPath, raw)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(nil)
	cfg.ApplyDefaults()
	return storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: cfg.BusyTimeout(),
		MaxConns:    cfg.Storage.MaxConns,
	}, logx.Nop())
}

// NewRoot builds the command tree. A nil open reads the store from --config.
func NewRoot(out io.Writer, open Opener, clk clock.Clock) *cobra.Command {
	c := &cli{out: out, open: open, clock: clk}
	if c.open == nil {
		c.open = c.openFromConfig
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}

	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Manage scheduled posts for schedbot",
		Long: `schedctl edits the schedbot store directly: posts, channels and
owner settings. The running bot picks changes up on its next tick.

Examples:
  schedctl channel add --id news --chat -1001234567890 --name News
  schedctl post add --channel channel:news --text "Hello" --at 2025-01-01T09:00:00Z
  schedctl post list --pending`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "./schedbot.yaml", "Path to the schedbot config file")
	root.PersistentFlags().StringVar(&c.dotenv, "env-file", ".env", "Optional .env file with overrides")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Output in JSON format")

	root.AddCommand(c.postCmd(), c.channelCmd(), c.userCmd())
	return root
}

// Execute runs schedctl with os.Args.
func Execute() {
	root := NewRoot(os.Stdout, nil, nil)
	if err := root.Execute(); err != nil {
		output.Printer{W: os.Stderr}.Error("%v", err)
		os.Exit(1)
	}
}
