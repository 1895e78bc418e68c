package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/store"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// the command's own context is cancelled.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// parseModes parses the --push and --pull flag values.
func parseModes(push, pull string) (status.Mode, status.Mode, error) {
	pushMode, err := status.ParseMode(push)
	if err != nil {
		return status.Disabled, status.Disabled, err
	}
	pullMode, err := status.ParseMode(pull)
	if err != nil {
		return status.Disabled, status.Disabled, err
	}
	return pushMode, pullMode, nil
}

// storeSet opens each database path once and closes them all together.
type storeSet struct {
	logger *slog.Logger
	open   map[string]*store.Store
}

func newStoreSet(logger *slog.Logger) *storeSet {
	return &storeSet{logger: logger, open: make(map[string]*store.Store)}
}

func (s *storeSet) get(path string) (*store.Store, error) {
	if st, ok := s.open[path]; ok {
		return st, nil
	}
	s.logger.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	s.open[path] = st
	return st, nil
}

func (s *storeSet) Close() {
	for path, st := range s.open {
		if err := st.Close(); err != nil {
			s.logger.Error("error closing database", "path", path, "error", err)
		}
	}
}
