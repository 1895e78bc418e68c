package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/store"
)

// PutResult is the result of put.
type PutResult struct {
	ID      string `json:"id"`
	Seq     int64  `json:"seq"`
	Deleted bool   `json:"deleted,omitempty"`
}

// RenderText implements textRenderer.
func (p PutResult) RenderText(w io.Writer) {
	verb := "stored"
	if p.Deleted {
		verb = "deleted"
	}
	fmt.Fprintf(w, "%s %q at seq %d\n", verb, p.ID, p.Seq)
}

// DocumentEntry is one document in list output.
type DocumentEntry struct {
	ID      string          `json:"id"`
	Seq     int64           `json:"seq"`
	Deleted bool            `json:"deleted,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// DocumentList is the result of list.
type DocumentList struct {
	Documents    []DocumentEntry `json:"documents"`
	LastSequence int64           `json:"last_sequence"`
}

// RenderText implements textRenderer.
func (l DocumentList) RenderText(w io.Writer) {
	for _, d := range l.Documents {
		if d.Deleted {
			fmt.Fprintf(w, "%6d  %s  (deleted)\n", d.Seq, d.ID)
			continue
		}
		fmt.Fprintf(w, "%6d  %s  %s\n", d.Seq, d.ID, d.Body)
	}
	fmt.Fprintf(w, "%d documents, last sequence %d\n", len(l.Documents), l.LastSequence)
}

// DocOptions holds flags for the put and list commands.
type DocOptions struct {
	*RootOptions
	Database string
	Delete   bool
	Since    int64
	All      bool
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <id> [json]",
		Short: "Write or delete a document",
		Long: `Write a JSON document into a database, or delete it with --delete.

Example:
  peersync put --db ./notes.db note-1 '{"title":"hello"}'
  peersync put --db ./notes.db --delete note-1`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the document instead of writing it")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPut(opts *DocOptions, cmd *cobra.Command, args []string) error {
	out := opts.formatter(cmd)
	id := args[0]

	var body []byte
	switch {
	case opts.Delete && len(args) == 2:
		return out.Fail(ExitCommandError, ErrCodeInvalidArg, "--delete takes no document body", nil)
	case !opts.Delete && len(args) == 1:
		return out.Fail(ExitCommandError, ErrCodeInvalidArg, "missing document body", nil)
	case !opts.Delete:
		body = []byte(args[1])
		if !json.Valid(body) {
			return out.Fail(ExitCommandError, ErrCodeInvalidArg, "document body is not valid JSON", nil)
		}
	}

	db, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open database", err)
	}
	defer db.Close()

	var seq int64
	if opts.Delete {
		seq, err = db.Delete(cmd.Context(), id)
	} else {
		seq, err = db.Put(cmd.Context(), id, body)
	}
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeGeneric, "write failed", err)
	}
	return out.Success(PutResult{ID: id, Seq: seq, Deleted: opts.Delete})
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in sequence order",
		Long: `List the documents in a database in the order they were written.

Deleted documents are listed only with --all.

Example:
  peersync list --db ./notes.db
  peersync list --db ./notes.db --since 10 --all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only list changes after this sequence")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include deleted documents")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runList(opts *DocOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	db, err := store.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeOpenFailed, "failed to open database", err)
	}
	defer db.Close()

	docs, err := db.ChangesSince(cmd.Context(), opts.Since, 0)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeGeneric, "read failed", err)
	}
	last, err := db.LastSequence(cmd.Context())
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeGeneric, "read failed", err)
	}

	list := DocumentList{Documents: []DocumentEntry{}, LastSequence: last}
	for _, d := range docs {
		if d.Deleted && !opts.All {
			continue
		}
		list.Documents = append(list.Documents, DocumentEntry{
			ID:      d.ID,
			Seq:     d.Seq,
			Deleted: d.Deleted,
			Body:    documentBody(d),
		})
	}
	return out.Success(list)
}

// documentBody returns the body as JSON. Bodies that are not JSON are
// rendered as a JSON string.
func documentBody(d store.Document) json.RawMessage {
	if d.Deleted || len(d.Body) == 0 {
		return nil
	}
	if json.Valid(d.Body) {
		return d.Body
	}
	quoted, _ := json.Marshal(string(d.Body))
	return quoted
}
