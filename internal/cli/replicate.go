package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/address"
	"github.com/roach88/peersync/internal/controller"
	"github.com/roach88/peersync/internal/engine"
	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/syncerr"
)

// ReplicateOptions holds flags for the replicate command.
type ReplicateOptions struct {
	*RootOptions
	Database     string
	URL          string
	OtherDB      string
	Push         string
	Pull         string
	PollInterval time.Duration

	// IDs overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs controller.IDGenerator
}

// ReplicationResult is the final state of a replicator.
type ReplicationResult struct {
	Name     string          `json:"name,omitempty"`
	ID       string          `json:"id"`
	Target   string          `json:"target"`
	Level    string          `json:"level"`
	Progress status.Progress `json:"progress"`
	Error    *syncerr.Error  `json:"error,omitempty"`
}

// RenderText implements textRenderer.
func (r ReplicationResult) RenderText(w io.Writer) {
	label := r.ID
	if r.Name != "" {
		label = r.Name
	}
	fmt.Fprintf(w, "%s -> %s: %s, %d/%d documents\n",
		label, r.Target, r.Level, r.Progress.Completed, r.Progress.Total)
	if r.Error != nil {
		fmt.Fprintf(w, "  error: %v\n", *r.Error)
	}
}

func newResult(name, target string, r *controller.Replicator) ReplicationResult {
	st := r.Status()
	return ReplicationResult{
		Name:     name,
		ID:       r.ID(),
		Target:   target,
		Level:    st.Level.String(),
		Progress: st.Progress,
		Error:    st.Error,
	}
}

// NewReplicateCommand creates the replicate command.
func NewReplicateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplicateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Replicate a database with a peer or another local database",
		Long: `Run one replicator until it stops or is interrupted.

The target is either a remote database URL (ws, wss, blip or blips) or
another local database file. Each direction takes a mode: disabled,
passive, one-shot or continuous.

Example:
  peersync replicate --db ./notes.db --url ws://localhost:4984/notes --push one-shot
  peersync replicate --db ./a.db --other-db ./b.db --push continuous --pull continuous`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplicate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the local SQLite database (required)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "remote database URL")
	cmd.Flags().StringVar(&opts.OtherDB, "other-db", "", "path to another local database")
	cmd.Flags().StringVar(&opts.Push, "push", "disabled", "push mode (disabled|passive|one-shot|continuous)")
	cmd.Flags().StringVar(&opts.Pull, "pull", "disabled", "pull mode (disabled|passive|one-shot|continuous)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", engine.DefaultPollInterval, "interval between continuous rounds")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("url", "other-db")
	cmd.MarkFlagsOneRequired("url", "other-db")

	return cmd
}

func runReplicate(opts *ReplicateOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	logger := opts.newLogger()

	push, pull, err := parseModes(opts.Push, opts.Pull)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid mode", err)
	}

	stores := newStoreSet(logger)
	defer stores.Close()

	db, err := stores.get(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open database", err)
	}
	params := controller.Params{DB: db, Push: push, Pull: pull}
	target := opts.OtherDB
	if opts.URL != "" {
		remote, dbName, err := address.ParseURL(opts.URL)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid URL", err)
		}
		params.Remote, params.RemoteDBName = &remote, dbName
		target = opts.URL
	} else {
		other, err := stores.get(opts.OtherDB)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open other database", err)
		}
		params.OtherDB = other
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	stopped := make(chan struct{})
	params.OnStatusChanged = func(r *controller.Replicator, st status.Status, _ any) {
		out.VerboseLog("status: %s", st)
		if st.IsStopped() {
			close(stopped)
		}
	}

	copts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithEngineOptions(engine.WithPollInterval(opts.PollInterval)),
	}
	if opts.IDs != nil {
		copts = append(copts, controller.WithIDGenerator(opts.IDs))
	}
	r, err := controller.New(params, copts...)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeReplication, "failed to start replicator", err)
	}

	select {
	case <-stopped:
	case <-ctx.Done():
		r.Stop()
		<-stopped
	}
	r.Free()
	<-r.Done()

	result := newResult("", target, r)
	if result.Error != nil {
		return out.Fail(ExitFailure, ErrCodeReplication, "replication failed", *result.Error)
	}
	return out.Success(result)
}
