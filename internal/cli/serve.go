package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/address"
	"github.com/roach88/peersync/internal/controller"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/transport"
)

// DefaultListenAddr is where serve listens when --listen is not given.
const DefaultListenAddr = "127.0.0.1:4984"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Name     string
	Listen   string

	// Ready is called with the bound address once the listener is up (for
	// testing with --listen :0).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept replication connections for a database",
		Long: `Serve a local database to peers over WebSocket.

Peers replicate with ws://ADDR/NAME, where NAME defaults to the database
file name without its extension. Every connection runs its own passive
session; the server never initiates transfers.

Example:
  peersync serve --db ./notes.db --listen 0.0.0.0:4984
  peersync serve --db ./notes.db --name shared`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite database to serve (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "database name peers use in URLs (default: file name)")
	cmd.Flags().StringVar(&opts.Listen, "listen", DefaultListenAddr, "host:port to listen on")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// defaultDatabaseName derives a served name from a database path.
func defaultDatabaseName(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	logger := opts.newLogger()

	name := opts.Name
	if name == "" {
		name = defaultDatabaseName(opts.Database)
	}
	if !address.IsValidDatabaseName(name) {
		return out.Fail(ExitCommandError, ErrCodeInvalidArg,
			fmt.Sprintf("invalid database name %q (use --name)", name), nil)
	}

	db, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	l, err := transport.Listen(opts.Listen, logger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeListenFailed, "failed to listen", err)
	}
	server := controller.NewServer(map[string]*store.Store{name: db}, controller.WithLogger(logger))

	logger.Info("serving", "db", name, "url", fmt.Sprintf("ws://%s/%s", l.Address(), name))
	if opts.Ready != nil {
		opts.Ready(l.Address())
	}

	if err := l.Serve(ctx, server.HandleSession); err != nil {
		return out.Fail(ExitFailure, ErrCodeListenFailed, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
