package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusCreated:       false,
		StatusInitializing:  false,
		StatusStagingInputs: false,
		StatusSubmitting:    false,
		StatusSubmitted:     false,
		StatusFinished:      true,
		StatusFailed:        true,
		StatusStopped:       true,
	}
	for s, want := range terminal {
		t.Run(string(s), func(t *testing.T) {
			assert.Equal(t, want, s.IsTerminal())
		})
	}
}

func TestStatusIsRunning(t *testing.T) {
	assert.False(t, StatusCreated.IsRunning())
	assert.True(t, StatusInitializing.IsRunning())
	assert.True(t, StatusStagingInputs.IsRunning())
	assert.True(t, StatusSubmitting.IsRunning())
	assert.True(t, StatusSubmitted.IsRunning())
	assert.False(t, StatusFinished.IsRunning())
	assert.False(t, StatusFailed.IsRunning())
	assert.False(t, StatusStopped.IsRunning())
	assert.False(t, Status("BOGUS").IsRunning())
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusInitializing, true},
		{StatusInitializing, StatusStagingInputs, true},
		{StatusStagingInputs, StatusSubmitting, true},
		{StatusSubmitting, StatusSubmitted, true},
		{StatusSubmitted, StatusFinished, true},
		{StatusCreated, StatusCreated, true},
		{StatusCreated, StatusStagingInputs, false},
		{StatusSubmitting, StatusInitializing, false},
		{StatusCreated, StatusFinished, false},
		{StatusStagingInputs, StatusFailed, true},
		{StatusCreated, StatusFailed, true},
		{StatusSubmitted, StatusStopped, true},
		{StatusFinished, StatusFailed, false},
		{StatusFailed, StatusStopped, false},
		{StatusStopped, StatusCreated, false},
		{StatusFinished, StatusFinished, true},
		{StatusCreated, Status("BOGUS"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}
