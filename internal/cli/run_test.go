package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/controller"
	"github.com/roach88/peersync/internal/testutil"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunMissingConfigFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(testRootOptions("text"))
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "config")
}

func TestRunInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "replications:\n  - name: x\n    db: a.db\n    bogus: true\n")

	cmd, buf := newTestCommand(context.Background())
	err := runConfig(&RunOptions{RootOptions: testRootOptions("text"), ConfigPath: path}, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E004]")
}

func TestRunLocalReplications(t *testing.T) {
	dir := t.TempDir()
	a := testutil.TempStore(t, "a.db", map[string]string{"x": "1", "y": "2"})
	b := testutil.TempStore(t, "b.db", nil)
	c := testutil.TempStore(t, "c.db", map[string]string{"z": "3"})

	path := writeFile(t, dir, "peersync.yaml", fmt.Sprintf(`
poll_interval: 10ms
replications:
  - name: a-to-b
    db: %s
    other_db: %s
    push: one-shot
  - name: c-from-b
    db: %s
    other_db: %s
    pull: one-shot
`, a.Path(), b.Path(), c.Path(), b.Path()))

	opts := &RunOptions{
		RootOptions: testRootOptions("json"),
		ConfigPath:  path,
		IDs:         controller.NewFixedGenerator("r1", "r2"),
	}
	cmd, buf := newTestCommand(context.Background())
	require.NoError(t, runConfig(opts, cmd))

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Replications, 2)
	assert.Equal(t, "a-to-b", resp.Data.Replications[0].Name)
	assert.Equal(t, "r1", resp.Data.Replications[0].ID)
	assert.Equal(t, "c-from-b", resp.Data.Replications[1].Name)
	for _, rep := range resp.Data.Replications {
		assert.Equal(t, "stopped", rep.Level)
		assert.Nil(t, rep.Error)
	}
	assert.GreaterOrEqual(t, testutil.DocCount(t, b), 2)
}

func TestRunServesDatabases(t *testing.T) {
	dir := t.TempDir()
	served := testutil.TempStore(t, "served.db", map[string]string{"s": "1"})
	local := testutil.TempStore(t, "local.db", nil)

	path := writeFile(t, dir, "server.yaml", fmt.Sprintf(`
listen: 127.0.0.1:0
databases:
  shared: %s
`, served.Path()))

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	opts := &RunOptions{
		RootOptions: testRootOptions("text"),
		ConfigPath:  path,
		Ready:       func(addr string) { ready <- addr },
	}
	cmd, buf := newTestCommand(ctx)
	done := make(chan error, 1)
	go func() { done <- runConfig(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(testTimeout):
		t.Fatal("server did not start")
	}

	rcmd, _ := newTestCommand(context.Background())
	require.NoError(t, runReplicate(&ReplicateOptions{
		RootOptions: testRootOptions("text"),
		Database:    local.Path(),
		URL:         "ws://" + addr + "/shared",
		Push:        "disabled",
		Pull:        "one-shot",
	}, rcmd))
	assert.Equal(t, 1, testutil.DocCount(t, local))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("run did not stop")
	}
	assert.Contains(t, buf.String(), "No replications configured.")
}
