package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTransitions(t *testing.T) {
	now := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	s := NewStep(1, "page access", "")

	assert.ErrorIs(t, s.Complete(now, StatePassed, "", nil, nil), ErrInvalidTransition)
	require.NoError(t, s.Start(now))
	assert.ErrorIs(t, s.Start(now), ErrInvalidTransition)
	assert.ErrorIs(t, s.Complete(now, StatePending, "", nil, nil), ErrInvalidTransition)
	assert.ErrorIs(t, s.Complete(now, StateRunning, "", nil, nil), ErrInvalidTransition)

	require.NoError(t, s.Complete(now.Add(time.Second), StatePassed, "ok", nil, nil))
	assert.Equal(t, time.Second, s.Duration())
	assert.ErrorIs(t, s.Complete(now, StateFailed, "", nil, nil), ErrInvalidTransition)
}

func TestDetailsOnlyOnFailure(t *testing.T) {
	now := time.Now()
	details := &IssueDetails{Problem: "x"}

	skipped := NewStep(1, "a", "")
	require.NoError(t, skipped.Start(now))
	require.NoError(t, skipped.Complete(now, StateSkipped, "skip", errors.New("e"), details))
	assert.Nil(t, skipped.Details)
	assert.Equal(t, "e", skipped.Error)

	failed := NewStep(2, "b", "")
	require.NoError(t, failed.Start(now))
	require.NoError(t, failed.Complete(now, StateFailed, "bad", nil, details))
	assert.Same(t, details, failed.Details)
}

func TestAbortLeavesTerminalSteps(t *testing.T) {
	now := time.Now()
	done := NewStep(1, "a", "")
	require.NoError(t, done.Start(now))
	require.NoError(t, done.Complete(now, StatePassed, "ok", nil, nil))

	assert.False(t, done.abort(now, "gone"))
	assert.Equal(t, StatePassed, done.State)

	pending := NewStep(2, "b", "")
	assert.True(t, pending.abort(now, "gone"))
	assert.Equal(t, StateSkipped, pending.State)
	assert.Equal(t, "gone", pending.Message)
}

func TestPendingStepJSONHasNoDetails(t *testing.T) {
	raw, err := json.Marshal(NewStep(3, "price", "price shown"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"number":3,"name":"price","description":"price shown","status":"pending","message":"","duration_ms":0}`, string(raw))
}
