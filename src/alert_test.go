package mowas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertMerge(t *testing.T) {
	t0 := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	old := NewAlert(&CAPAlert{Identifier: "A", Note: "old"})
	old.SetPIDs([]int{3})
	old.TXDone("tt", "tn", t0)

	fresh := NewAlert(&CAPAlert{Identifier: "A", Note: "new"})
	old.Merge(fresh)

	// Payload replaced, bookkeeping preserved.
	assert.Equal(t, "new", old.CAP.Note)
	assert.Equal(t, []int{3}, old.PIDs())
	_, last, ok := old.TXStatus("tt", "tn")
	require.True(t, ok)
	assert.Equal(t, t0, last)

	// New keys are added, existing ones are not overwritten.
	fresh2 := NewAlert(&CAPAlert{Identifier: "A"})
	fresh2.Attrs["path_audio"] = "/tmp/a.wav"
	fresh2.SetPIDs([]int{9})
	old.Merge(fresh2)
	assert.Equal(t, "/tmp/a.wav", old.Attrs["path_audio"])
	assert.Equal(t, []int{3}, old.PIDs())
}

func TestAlertMergePanicsOnIdentifierMismatch(t *testing.T) {
	a := NewAlert(&CAPAlert{Identifier: "A"})
	b := NewAlert(&CAPAlert{Identifier: "B"})
	assert.Panics(t, func() { a.Merge(b) })
}

func TestAlertTXWindow(t *testing.T) {
	t0 := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	alert := NewAlert(&CAPAlert{Identifier: "A"})

	_, _, ok := alert.TXStatus("tt", "tn")
	assert.False(t, ok)

	alert.TXDone("tt", "tn", t0)
	first, last, ok := alert.TXStatus("tt", "tn")
	require.True(t, ok)
	assert.Equal(t, t0, first)
	assert.Equal(t, t0, last)

	alert.TXDone("tt", "tn", t0.Add(10*time.Minute))
	first, last, ok = alert.TXStatus("tt", "tn")
	require.True(t, ok)
	assert.Equal(t, t0, first)
	assert.Equal(t, t0.Add(10*time.Minute), last)
}

func TestAlertNormalizeAttrs(t *testing.T) {
	alert := &Alert{
		CAP:   &CAPAlert{Identifier: "A"},
		Attrs: map[string]any{"pids": []any{float64(1), float64(4)}},
	}
	alert.normalizeAttrs()
	assert.Equal(t, []int{1, 4}, alert.PIDs())
	assert.NotNil(t, alert.TXState)
}
