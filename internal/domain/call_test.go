package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCallStatusTransitions(t *testing.T) {
	tests := []struct {
		from CallStatus
		to   CallStatus
		want bool
	}{
		{CallStatusPending, CallStatusPaymentPending, true},
		{CallStatusPending, CallStatusRejected, true},
		{CallStatusPending, CallStatusActive, false},
		{CallStatusPaymentPending, CallStatusActive, true},
		{CallStatusPaymentPending, CallStatusRejected, false},
		{CallStatusActive, CallStatusCompleted, true},
		{CallStatusActive, CallStatusCancelled, false},
		{CallStatusCompleted, CallStatusActive, false},
		{CallStatusExpired, CallStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []CallStatus{CallStatusCompleted, CallStatusRejected, CallStatusCancelled, CallStatusExpired} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, transitions[s])
	}
	for _, s := range OpenStatuses {
		assert.False(t, s.IsTerminal())
	}
}

func TestSourcesFor(t *testing.T) {
	assert.Equal(t, []CallStatus{CallStatusPending, CallStatusPaymentPending}, SourcesFor(CallStatusCancelled))
	assert.Equal(t, []CallStatus{CallStatusPaymentPending}, SourcesFor(CallStatusActive))
	assert.Empty(t, SourcesFor(CallStatusPending))
}

func TestIsParticipant(t *testing.T) {
	c := &CallRequest{StreamerID: uuid.New(), ViewerID: uuid.New()}

	assert.True(t, c.IsParticipant(c.StreamerID))
	assert.True(t, c.IsParticipant(c.ViewerID))
	assert.False(t, c.IsParticipant(uuid.New()))
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(4*time.Minute + 30*time.Second)

	assert.Equal(t, int64(0), (&CallRequest{}).ElapsedSeconds())
	assert.Equal(t, int64(0), (&CallRequest{StartedAt: &start}).ElapsedSeconds())
	assert.Equal(t, int64(270), (&CallRequest{StartedAt: &start, EndedAt: &end}).ElapsedSeconds())
}
