package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/status"
)

const validConfig = `
listen: 127.0.0.1:4984
poll_interval: 500ms
databases:
  notes: notes.db
replications:
  - name: up
    db: notes.db
    url: ws://sync.example.com:4984/notes
    push: continuous
  - name: mirror
    db: /var/lib/a.db
    other_db: b.db
    push: one-shot
    pull: oneshot
    poll_interval: 1s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)
	dir := filepath.Dir(path)

	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4984", f.Listen)
	assert.Equal(t, filepath.Join(dir, "notes.db"), f.Databases["notes"])
	require.Len(t, f.Replications, 2)

	up := f.Replications[0]
	assert.Equal(t, filepath.Join(dir, "notes.db"), up.DB)
	push, pull, err := up.Modes()
	require.NoError(t, err)
	assert.Equal(t, status.Continuous, push)
	assert.Equal(t, status.Disabled, pull)

	mirror := f.Replications[1]
	assert.Equal(t, "/var/lib/a.db", mirror.DB)
	assert.Equal(t, filepath.Join(dir, "b.db"), mirror.OtherDB)
	push, pull, err = mirror.Modes()
	require.NoError(t, err)
	assert.Equal(t, status.OneShot, push)
	assert.Equal(t, status.OneShot, pull)

	d, err := f.Interval(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)
	d, err = mirror.Interval(d)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
	d, err = up.Interval(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeRead, le.Code)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_PathInError(t *testing.T) {
	path := writeConfig(t, "replications:\n  - name: x\n    db: a.db\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("replications:\n  - name: x\n    db: a.db\n    other_db: b.db\n    pushh: one-shot\n"))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeParse, le.Code)
	assert.Contains(t, err.Error(), "pushh")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad mode", "replications:\n  - name: x\n    db: a.db\n    other_db: b.db\n    push: sometimes\n"},
		{"missing db", "replications:\n  - name: x\n    other_db: b.db\n    push: one-shot\n"},
		{"bad url scheme", "replications:\n  - name: x\n    db: a.db\n    url: http://h/db\n    push: one-shot\n"},
		{"bad duration", "poll_interval: soon\n"},
		{"bad name", "replications:\n  - name: ' spaced'\n    db: a.db\n    other_db: b.db\n    push: one-shot\n"},
		{"bad database key", "databases:\n  \"-bad\": a.db\n"},
		{"uppercase database key", "databases:\n  Notes: a.db\n"},
		{"dotted database key", "databases:\n  my.db: a.db\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, IsSchemaError(err), "got %v", err)
		})
	}
}

func TestParse_RuleViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"both targets",
			"replications:\n  - name: x\n    db: a.db\n    other_db: b.db\n    url: ws://h/db\n    push: one-shot\n",
			"exactly one",
		},
		{
			"no target",
			"replications:\n  - name: x\n    db: a.db\n    push: one-shot\n",
			"exactly one",
		},
		{
			"both disabled",
			"replications:\n  - name: x\n    db: a.db\n    other_db: b.db\n",
			"both disabled",
		},
		{
			"duplicate name",
			"replications:\n  - name: x\n    db: a.db\n    other_db: b.db\n    push: one-shot\n  - name: x\n    db: c.db\n    other_db: d.db\n    pull: one-shot\n",
			"duplicate",
		},
		{
			"invalid database in url",
			"replications:\n  - name: x\n    db: a.db\n    url: ws://h/_bad\n    push: one-shot\n",
			"invalid replication URL",
		},
		{
			"database name too long",
			"databases:\n  " + strings.Repeat("n", 240) + ": a.db\n",
			"invalid database name",
		},
		{
			"zero interval",
			"poll_interval: 0s\n",
			"positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, IsRuleError(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse([]byte("listen: :4984\n"))
	require.NoError(t, err)
	assert.Empty(t, f.Replications)
	d, err := f.Interval(3 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
}
