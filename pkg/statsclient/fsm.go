package statsclient

import "time"

// Phase of the client connection.
type Phase string

const (
	PhaseLoading      Phase = "loading"
	PhaseLive         Phase = "live"
	PhaseReconnecting Phase = "reconnecting"
	PhasePolling      Phase = "polling"
)

// Event drives the connection state machine.
type Event string

const (
	EventPushOpened    Event = "push_opened"
	EventPushFrame     Event = "push_frame"
	EventPushFailed    Event = "push_failed"
	EventPollSucceeded Event = "poll_succeeded"
	EventPollFailed    Event = "poll_failed"
	EventPushRetry     Event = "push_retry"
)

// State is the phase plus the number of consecutive failed push attempts.
type State struct {
	Phase   Phase `json:"phase"`
	Attempt int   `json:"attempt"`
}

// Status is the coarse connection status shown to users.
func (s State) Status() string {
	switch s.Phase {
	case PhaseLive:
		return "connected"
	case PhasePolling:
		return "disconnected"
	}
	return "loading"
}

// Next is the pure transition function. maxAttempts is the number of
// reconnects tried before falling back to polling.
func Next(s State, ev Event, maxAttempts int) State {
	switch ev {
	case EventPushOpened:
		// попытки обнуляет только полученный снимок
		return State{Phase: PhaseLive, Attempt: s.Attempt}

	case EventPushFrame:
		return State{Phase: PhaseLive}

	case EventPushFailed:
		attempt := s.Attempt + 1
		if s.Phase == PhasePolling || attempt > maxAttempts {
			return State{Phase: PhasePolling, Attempt: attempt}
		}
		return State{Phase: PhaseReconnecting, Attempt: attempt}

	case EventPollSucceeded:
		return State{Phase: s.Phase}

	case EventPollFailed:
		return s

	case EventPushRetry:
		if s.Phase != PhasePolling {
			return s
		}
		// одна попытка: при неудаче сразу обратно в опрос
		return State{Phase: PhaseReconnecting, Attempt: maxAttempts}
	}
	return s
}

// Backoff is the delay before reconnect attempt n (1-based): base·2^(n-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
