package retry

import (
	"testing"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/stretchr/testify/assert"
)

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 1, MaxAttempts(0))
	assert.Equal(t, 1, MaxAttempts(-3))
	assert.Equal(t, 11, MaxAttempts(10))
}

func TestDelay_Bounds(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{attempt: 1, min: 16 * time.Second, max: (16 + 60) * time.Second},
		{attempt: 2, min: 31 * time.Second, max: (31 + 90) * time.Second},
		{attempt: 5, min: 640 * time.Second, max: (640 + 180) * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			d := Delay(tt.attempt)
			assert.GreaterOrEqual(t, d, tt.min)
			assert.LessOrEqual(t, d, tt.max)
		}
	}
}

func TestDelay_Deterministic(t *testing.T) {
	assert.Equal(t, 16*time.Second, delay(1, 0))
	assert.Equal(t, 76*time.Second, delay(1, 30))
	assert.Equal(t, 16*time.Second, delay(0, 0))
}

func TestNext_ZeroRetriesFailsImmediately(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	status, at := Next(1, MaxAttempts(0), now)
	assert.Equal(t, state.StatusFailed, status)
	assert.Equal(t, now, at)
}

func TestNext_Retries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	status, at := Next(1, MaxAttempts(3), now)
	assert.Equal(t, state.StatusRetrying, status)
	assert.True(t, at.After(now))

	status, _ = Next(4, MaxAttempts(3), now)
	assert.Equal(t, state.StatusFailed, status)
}
