package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/syncerr"
)

func TestActivityLevel_Ordering(t *testing.T) {
	assert.Less(t, Stopped, Offline)
	assert.Less(t, Offline, Connecting)
	assert.Less(t, Connecting, Idle)
	assert.Less(t, Idle, Busy)
}

func TestActivityLevel_String(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "busy", Busy.String())
	assert.Equal(t, "level(9)", ActivityLevel(9).String())
}

func TestCanTransition(t *testing.T) {
	valid := [][2]ActivityLevel{
		{Offline, Connecting},
		{Connecting, Idle},
		{Connecting, Busy},
		{Connecting, Stopped},
		{Idle, Busy},
		{Busy, Idle},
		{Busy, Stopped},
		{Idle, Stopped},
		{Idle, Offline},
		{Busy, Busy},
	}
	for _, tr := range valid {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	invalid := [][2]ActivityLevel{
		{Stopped, Offline},
		{Stopped, Connecting},
		{Stopped, Busy},
		{Stopped, Stopped},
		{Busy, Connecting},
		{Idle, Connecting},
		{Offline, Busy},
	}
	for _, tr := range invalid {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"disabled":   Disabled,
		"passive":    Passive,
		"one-shot":   OneShot,
		"oneshot":    OneShot,
		"Continuous": Continuous,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("sometimes")
	assert.Error(t, err)
}

func TestMode_IsActive(t *testing.T) {
	assert.False(t, Disabled.IsActive())
	assert.False(t, Passive.IsActive())
	assert.True(t, OneShot.IsActive())
	assert.True(t, Continuous.IsActive())
	assert.Equal(t, "one-shot", OneShot.String())
}

func TestStatus_JSON(t *testing.T) {
	e := syncerr.NewMessageLog(0).Record(syncerr.NetworkDomain, syncerr.NetworkUnknownHost, "")
	st := Status{Level: Busy, Progress: Progress{Completed: 3, Total: 7}, Error: &e}

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"busy","progress":{"completed":3,"total":7},"error":{"domain":5,"code":2}}`, string(data))
}

func TestStatus_String(t *testing.T) {
	st := Status{Level: Idle, Progress: Progress{Completed: 1, Total: 2}}
	assert.Equal(t, "idle (1/2)", st.String())
	assert.False(t, st.IsStopped())
	assert.True(t, Status{}.IsStopped())
}
