package async

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunStatus_StartsIdle(t *testing.T) {
	// Given: a fresh status
	s := NewRunStatus("index-writer")

	// Then: it is idle with no history
	snap := s.Snapshot()
	assert.Equal(t, "index-writer", snap.Family)
	assert.Equal(t, string(StateIdle), snap.State)
	assert.Zero(t, snap.Runs)
	assert.Empty(t, snap.LastError)
	assert.False(t, s.IsRunning())
}

func TestRunStatus_TracksRuns(t *testing.T) {
	// Given: a status
	s := NewRunStatus("f")

	// When: a run starts
	s.MarkStarted(false)

	// Then: it is running
	assert.True(t, s.IsRunning())

	// When: the run fails and a rescheduled run succeeds
	s.MarkFinished(errors.New("disk full"))
	assert.Equal(t, "disk full", s.Snapshot().LastError)
	s.MarkStarted(true)
	s.MarkFinished(nil)
	s.MarkIdle()

	// Then: history reflects both runs and the error is cleared
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Runs)
	assert.Equal(t, 1, snap.Failures)
	assert.Equal(t, 1, snap.RescheduledRuns)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, string(StateIdle), snap.State)
	assert.False(t, snap.LastFinished.Before(snap.LastStarted))
}

func TestRunStatus_Coalesced(t *testing.T) {
	s := NewRunStatus("f")
	s.MarkCoalesced()
	s.MarkCoalesced()
	assert.Equal(t, 2, s.Snapshot().Coalesced)
}
