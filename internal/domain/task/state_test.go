package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		from  State
		to    State
		valid bool
	}{
		{"unopened to opened", StateUnopened, StateOpened, true},
		{"unopened to verifying", StateUnopened, StateVerifying, true},
		{"unopened to completed", StateUnopened, StateCompleted, false},
		{"opened to verifying", StateOpened, StateVerifying, true},
		{"opened to completed", StateOpened, StateCompleted, false},
		{"verifying to completed", StateVerifying, StateCompleted, true},
		{"verifying to opened", StateVerifying, StateOpened, true},
		{"verifying to unopened", StateVerifying, StateUnopened, true},
		{"verifying to errored", StateVerifying, StateErrored, true},
		{"errored to opened", StateErrored, StateOpened, true},
		{"errored to verifying", StateErrored, StateVerifying, true},
		{"errored to completed", StateErrored, StateCompleted, false},
		{"completed to opened", StateCompleted, StateOpened, false},
		{"completed to errored", StateCompleted, StateErrored, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.from.validateTransition(tt.to)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	s, err := ParseState("completed")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s)
	assert.True(t, s.IsTerminal())

	_, err = ParseState("DONE")
	assert.Error(t, err)
}
