package statsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNext проверяет переходы автомата состояний клиента
func TestNext(t *testing.T) {
	const max = 5
	tests := []struct {
		name string
		from State
		ev   Event
		want State
	}{
		{"stream opens", State{Phase: PhaseLoading}, EventPushOpened, State{Phase: PhaseLive}},
		{"open keeps attempts", State{Phase: PhaseReconnecting, Attempt: 3}, EventPushOpened, State{Phase: PhaseLive, Attempt: 3}},
		{"frame resets attempts", State{Phase: PhaseLive, Attempt: 3}, EventPushFrame, State{Phase: PhaseLive}},
		{"first failure", State{Phase: PhaseLive}, EventPushFailed, State{Phase: PhaseReconnecting, Attempt: 1}},
		{"last allowed attempt", State{Phase: PhaseReconnecting, Attempt: 4}, EventPushFailed, State{Phase: PhaseReconnecting, Attempt: 5}},
		{"attempts exhausted", State{Phase: PhaseReconnecting, Attempt: 5}, EventPushFailed, State{Phase: PhasePolling, Attempt: 6}},
		{"poll keeps polling", State{Phase: PhasePolling, Attempt: 6}, EventPollSucceeded, State{Phase: PhasePolling}},
		{"failed poll changes nothing", State{Phase: PhasePolling, Attempt: 6}, EventPollFailed, State{Phase: PhasePolling, Attempt: 6}},
		{"retry from polling", State{Phase: PhasePolling}, EventPushRetry, State{Phase: PhaseReconnecting, Attempt: max}},
		{"retry failure goes back", State{Phase: PhaseReconnecting, Attempt: max}, EventPushFailed, State{Phase: PhasePolling, Attempt: max + 1}},
		{"retry ignored when live", State{Phase: PhaseLive}, EventPushRetry, State{Phase: PhaseLive}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.from, tt.ev, max))
		})
	}
}

func TestBackoff(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, Backoff(base, 1))
	assert.Equal(t, 2*time.Second, Backoff(base, 2))
	assert.Equal(t, 16*time.Second, Backoff(base, 5))
	assert.Equal(t, time.Second, Backoff(base, 0))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "loading", State{Phase: PhaseLoading}.Status())
	assert.Equal(t, "loading", State{Phase: PhaseReconnecting, Attempt: 2}.Status())
	assert.Equal(t, "connected", State{Phase: PhaseLive}.Status())
	assert.Equal(t, "disconnected", State{Phase: PhasePolling}.Status())
}
