package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/testutil"
)

// startServe runs the serve command in the background and returns the
// bound address. The server stops when the test ends.
func startServe(t *testing.T, dbPath, name string) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: testRootOptions("text"),
		Database:    dbPath,
		Name:        name,
		Listen:      "127.0.0.1:0",
		Ready:       func(addr string) { ready <- addr },
	}
	cmd, _ := newTestCommand(ctx)
	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			t.Error("serve did not stop")
		}
	})

	select {
	case addr := <-ready:
		return addr
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(testTimeout):
		t.Fatal("serve did not start")
	}
	return ""
}

func TestServe_RemotePushAndPull(t *testing.T) {
	served := testutil.TempStore(t, "Served.db", map[string]string{"remote-doc": `{"from":"server"}`})
	local := testutil.TempStore(t, "local.db", map[string]string{"local-doc": `{"from":"client"}`})

	addr := startServe(t, served.Path(), "")

	opts := &ReplicateOptions{
		RootOptions:  testRootOptions("json"),
		Database:     local.Path(),
		URL:          "ws://" + addr + "/served",
		Push:         "one-shot",
		Pull:         "one-shot",
		PollInterval: 10 * time.Millisecond,
	}
	cmd, buf := newTestCommand(context.Background())
	require.NoError(t, runReplicate(opts, cmd))

	resp, result := decodeResult(t, buf.String())
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "stopped", result.Level)
	assert.Equal(t, 2, testutil.DocCount(t, served))
	assert.Equal(t, 2, testutil.DocCount(t, local))
}

func TestServe_UnknownDatabase(t *testing.T) {
	served := testutil.TempStore(t, "served.db", nil)
	local := testutil.TempStore(t, "local.db", map[string]string{"a": "1"})

	addr := startServe(t, served.Path(), "shared")

	opts := &ReplicateOptions{
		RootOptions: testRootOptions("text"),
		Database:    local.Path(),
		URL:         "ws://" + addr + "/other",
		Push:        "one-shot",
		Pull:        "disabled",
	}
	cmd, _ := newTestCommand(context.Background())
	err := runReplicate(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestServe_InvalidName(t *testing.T) {
	opts := &ServeOptions{
		RootOptions: testRootOptions("text"),
		Database:    t.TempDir() + "/9lives.db",
		Listen:      "127.0.0.1:0",
	}
	cmd, buf := newTestCommand(context.Background())
	err := runServe(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "use --name")
}

func TestDefaultDatabaseName(t *testing.T) {
	assert.Equal(t, "notes", defaultDatabaseName("/data/Notes.db"))
	assert.Equal(t, "archive.v2", defaultDatabaseName("archive.v2.sqlite"))
	assert.Equal(t, "plain", defaultDatabaseName("plain"))
}
