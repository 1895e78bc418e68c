package cli

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/controller"
	"github.com/roach88/peersync/internal/syncerr"
	"github.com/roach88/peersync/internal/testutil"
)

const testTimeout = 10 * time.Second

func decodeResult(t *testing.T, out string) (CLIResponse, ReplicationResult) {
	t.Helper()
	var resp struct {
		CLIResponse
		Data ReplicationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.CLIResponse, resp.Data
}

func TestReplicate_LocalOneShotPush(t *testing.T) {
	src := testutil.TempStore(t, "src.db", map[string]string{"a": `{"n":1}`, "b": `{"n":2}`, "c": `{"n":3}`})
	dst := testutil.TempStore(t, "dst.db", nil)

	opts := &ReplicateOptions{
		RootOptions:  testRootOptions("json"),
		Database:     src.Path(),
		OtherDB:      dst.Path(),
		Push:         "one-shot",
		Pull:         "disabled",
		PollInterval: 10 * time.Millisecond,
		IDs:          controller.NewFixedGenerator("repl-1"),
	}
	cmd, buf := newTestCommand(context.Background())
	require.NoError(t, runReplicate(opts, cmd))

	resp, result := decodeResult(t, buf.String())
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "repl-1", result.ID)
	assert.Equal(t, "stopped", result.Level)
	assert.Equal(t, uint64(3), result.Progress.Completed)
	assert.Nil(t, result.Error)
	assert.Equal(t, 3, testutil.DocCount(t, dst))
}

func TestReplicate_ContinuousStopsOnCancel(t *testing.T) {
	src := testutil.TempStore(t, "src.db", map[string]string{"a": "1"})
	dst := testutil.TempStore(t, "dst.db", nil)

	opts := &ReplicateOptions{
		RootOptions:  testRootOptions("text"),
		Database:     src.Path(),
		OtherDB:      dst.Path(),
		Push:         "continuous",
		Pull:         "continuous",
		PollInterval: 10 * time.Millisecond,
		IDs:          controller.NewFixedGenerator("repl-c"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd, buf := newTestCommand(ctx)

	done := make(chan error, 1)
	go func() { done <- runReplicate(opts, cmd) }()

	require.Eventually(t, func() bool { return testutil.DocCount(t, dst) == 1 }, testTimeout, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("replicate did not stop after cancel")
	}
	assert.Contains(t, buf.String(), "repl-c -> ")
	assert.Contains(t, buf.String(), ": stopped, ")
}

func TestReplicate_InvalidArgs(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.db")
	tests := []struct {
		name string
		opts ReplicateOptions
		want string
	}{
		{"bad mode", ReplicateOptions{Database: src, OtherDB: src + "2", Push: "sometimes", Pull: "disabled"}, "invalid mode"},
		{"bad url", ReplicateOptions{Database: src, URL: "ftp://h/db", Push: "one-shot", Pull: "disabled"}, "invalid URL"},
		{"both disabled", ReplicateOptions{Database: src, OtherDB: src + "2", Push: "disabled", Pull: "disabled"}, "failed to start replicator"},
		{"same database", ReplicateOptions{Database: src, OtherDB: src, Push: "one-shot", Pull: "disabled"}, "failed to start replicator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.RootOptions = testRootOptions("text")
			cmd, buf := newTestCommand(context.Background())
			err := runReplicate(&opts, cmd)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestReplicate_FlagValidation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "a.db")

	_, err := execute(t, "replicate", "--db", db, "--push", "one-shot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")

	_, err = execute(t, "replicate", "--db", db, "--url", "ws://h/db", "--other-db", db, "--push", "one-shot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestReplicate_ConnectionRefused(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	src := testutil.TempStore(t, "src.db", map[string]string{"a": "1"})
	opts := &ReplicateOptions{
		RootOptions: testRootOptions("json"),
		Database:    src.Path(),
		URL:         "ws://" + addr + "/db",
		Push:        "one-shot",
		Pull:        "disabled",
	}
	cmd, buf := newTestCommand(context.Background())
	err = runReplicate(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	se, ok := syncerr.As(err)
	require.True(t, ok, "got %v", err)
	assert.True(t, syncerr.MayBeTransient(se), "got %v", se)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error.Sync)
	assert.Equal(t, ErrCodeReplication, resp.Error.Code)
}
