package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/address"
	"github.com/roach88/peersync/internal/config"
	"github.com/roach88/peersync/internal/controller"
	"github.com/roach88/peersync/internal/engine"
	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/store"
	"github.com/roach88/peersync/internal/transport"
)

// shutdownTimeout bounds how long run waits for replicators to stop after
// an interrupt.
const shutdownTimeout = 10 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string

	// IDs overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs controller.IDGenerator

	// Ready is called with the bound address once the server is up, if the
	// config has one (for testing).
	Ready func(addr string)
}

// RunResult summarises a run.
type RunResult struct {
	Listen       string              `json:"listen,omitempty"`
	Replications []ReplicationResult `json:"replications"`
}

// RenderText implements textRenderer.
func (r RunResult) RenderText(w io.Writer) {
	if len(r.Replications) == 0 {
		fmt.Fprintln(w, "No replications configured.")
	}
	for _, rep := range r.Replications {
		rep.RenderText(w)
	}
}

// failed reports whether any replication ended with an error.
func (r RunResult) failed() bool {
	for _, rep := range r.Replications {
		if rep.Error != nil {
			return true
		}
	}
	return false
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the server and replications from a config file",
		Long: `Start everything a config file describes.

If the file sets listen, its databases are served on that address until
the process is interrupted. Every replication is started; without a
server, run exits once all of them have stopped.

Example:
  peersync run --config ./peersync.yaml
  peersync run --config ./peersync.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to the YAML config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runConfig(opts *RunOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	logger := opts.newLogger()

	f, err := config.Load(opts.ConfigPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid config", err)
	}
	interval, _ := f.Interval(engine.DefaultPollInterval)

	stores := newStoreSet(logger)
	defer stores.Close()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	result := RunResult{Listen: f.Listen}
	var serveDone chan error
	if f.Listen != "" {
		served := make(map[string]*store.Store, len(f.Databases))
		for name, path := range f.Databases {
			db, err := stores.get(path)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeOpenFailed, fmt.Sprintf("failed to open database %q", name), err)
			}
			served[name] = db
		}
		l, err := transport.Listen(f.Listen, logger)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeListenFailed, "failed to listen", err)
		}
		server := controller.NewServer(served, controller.WithLogger(logger))
		result.Listen = l.Address()
		logger.Info("serving", "addr", l.Address(), "databases", server.Databases())
		if opts.Ready != nil {
			opts.Ready(l.Address())
		}

		serveDone = make(chan error, 1)
		go func() { serveDone <- l.Serve(ctx, server.HandleSession) }()
	}

	registry := controller.NewRegistry()
	type started struct {
		name, target string
		r            *controller.Replicator
	}
	var running []started
	var startErr error
	for _, rc := range f.Replications {
		r, target, err := startReplication(rc, stores, registry, logger, interval, opts.IDs)
		if err != nil {
			startErr = fmt.Errorf("replication %q: %w", rc.Name, err)
			break
		}
		running = append(running, started{name: rc.Name, target: target, r: r})
	}

	if startErr == nil {
		if serveDone != nil {
			<-ctx.Done()
		} else if err := registry.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("waiting for replications", "error", err)
		}
	}

	registry.StopAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := registry.Wait(shutdownCtx); err != nil {
		logger.Warn("replications did not stop in time", "error", err)
	}
	for _, s := range running {
		s.r.Free()
		result.Replications = append(result.Replications, newResult(s.name, s.target, s.r))
	}

	cancel()
	if serveDone != nil {
		if err := <-serveDone; err != nil {
			logger.Error("server error", "error", err)
		}
	}

	if startErr != nil {
		return out.Fail(ExitCommandError, ErrCodeReplication, "failed to start replication", startErr)
	}
	if result.failed() {
		if err := out.Success(result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "one or more replications failed")
	}
	return out.Success(result)
}

func startReplication(
	rc config.Replication,
	stores *storeSet,
	registry *controller.Registry,
	logger *slog.Logger,
	defaultInterval time.Duration,
	ids controller.IDGenerator,
) (*controller.Replicator, string, error) {
	push, pull, err := rc.Modes()
	if err != nil {
		return nil, "", err
	}
	interval, err := rc.Interval(defaultInterval)
	if err != nil {
		return nil, "", err
	}
	db, err := stores.get(rc.DB)
	if err != nil {
		return nil, "", err
	}

	params := controller.Params{
		DB:      db,
		Push:    push,
		Pull:    pull,
		Context: rc.Name,
		OnStatusChanged: func(_ *controller.Replicator, st status.Status, name any) {
			logger.Debug("replication status", "replication", name, "status", st.String())
		},
	}
	target := rc.OtherDB
	if rc.URL != "" {
		remote, dbName, err := address.ParseURL(rc.URL)
		if err != nil {
			return nil, "", err
		}
		params.Remote, params.RemoteDBName = &remote, dbName
		target = rc.URL
	} else {
		other, err := stores.get(rc.OtherDB)
		if err != nil {
			return nil, "", err
		}
		params.OtherDB = other
	}

	copts := []controller.Option{
		controller.WithRegistry(registry),
		controller.WithLogger(logger.With("replication", rc.Name)),
		controller.WithEngineOptions(engine.WithPollInterval(interval)),
	}
	if ids != nil {
		copts = append(copts, controller.WithIDGenerator(ids))
	}
	r, err := controller.New(params, copts...)
	if err != nil {
		return nil, "", err
	}
	return r, target, nil
}
