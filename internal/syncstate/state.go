// Package syncstate defines the sync lifecycle of an email account:
// which status transitions are legal and which user actions are valid
// in each status. It performs no I/O; callers (the orchestrator and the
// poller) drive every transition.
package syncstate

import (
	"fmt"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
)

// Event is a caller-driven cause of a status change.
type Event string

const (
	// EventTrigger starts the sync sequence (folder sync first).
	EventTrigger Event = "trigger"
	// EventBackgroundStart marks acceptance of the background sync request.
	EventBackgroundStart Event = "background_start"
	EventPause           Event = "pause"
	EventResume          Event = "resume"
	EventStop            Event = "stop"
	EventComplete        Event = "complete"
	EventFail            Event = "fail"
	EventRetry           Event = "retry"
)

// ErrInvalidTransition is returned when an event is not legal in the
// account's current status.
type ErrInvalidTransition struct {
	From  models.SyncStatus
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid sync transition: event %q in status %q", e.Event, e.From)
}

// Transition returns the status reached by applying ev in from. The
// result is always one of the six defined states; an illegal pairing
// returns ErrInvalidTransition and leaves the caller's state untouched.
func Transition(from models.SyncStatus, ev Event) (models.SyncStatus, error) {
	switch ev {
	case EventTrigger:
		// A fresh sync can start from any settled state. Paused accounts
		// re-enter via resume, which re-invokes the trigger sequence.
		switch from {
		case models.SyncStatusIdle, models.SyncStatusCompleted, models.SyncStatusPaused:
			return models.SyncStatusSyncing, nil
		}
	case EventBackgroundStart:
		if from == models.SyncStatusSyncing {
			return models.SyncStatusBackground, nil
		}
	case EventPause:
		if from.Active() {
			return models.SyncStatusPaused, nil
		}
	case EventResume:
		if from == models.SyncStatusPaused {
			return models.SyncStatusSyncing, nil
		}
	case EventStop:
		// Stop discards the progress context entirely; allowed from a
		// paused sync as well as a running one.
		if from.Active() || from == models.SyncStatusPaused {
			return models.SyncStatusIdle, nil
		}
	case EventComplete:
		if from.Active() {
			return models.SyncStatusCompleted, nil
		}
	case EventFail:
		if from.Active() {
			return models.SyncStatusError, nil
		}
	case EventRetry:
		if from == models.SyncStatusError {
			return models.SyncStatusSyncing, nil
		}
	}
	return from, &ErrInvalidTransition{From: from, Event: ev}
}

// Apply performs the transition on the account and keeps the dependent
// fields (progress, syncStopped, lastError) consistent with the new
// status. errMsg is recorded only for EventFail.
func Apply(account *models.EmailAccount, ev Event, errMsg *string) error {
	next, err := Transition(account.SyncStatus, ev)
	if err != nil {
		return err
	}

	switch ev {
	case EventTrigger, EventRetry:
		account.SyncProgress = 0
		account.SyncedEmailCount = 0
		account.ContinuationCount = 0
		account.CurrentPage = 0
		account.LastError = nil
		account.SyncStopped = false
	case EventPause:
		account.SyncStopped = true
	case EventResume:
		account.SyncStopped = false
	case EventStop:
		// Counters after a stop are provider-authoritative; the caller
		// refreshes them rather than trusting local values.
		account.SyncStopped = false
		account.LastError = nil
	case EventComplete:
		account.SyncProgress = 100
		account.LastError = nil
	case EventFail:
		account.LastError = errMsg
	}

	account.SyncStatus = next
	return nil
}

// Affordances lists the actions that are valid for an account's current
// state. The UI renders exactly these buttons, nothing else.
type Affordances struct {
	CanSync   bool `json:"canSync"`
	CanPause  bool `json:"canPause"`
	CanResume bool `json:"canResume"`
	CanStop   bool `json:"canStop"`
	CanRetry  bool `json:"canRetry"`
}

// AffordancesFor is a pure function of (status, syncStopped).
func AffordancesFor(status models.SyncStatus, syncStopped bool) Affordances {
	switch status {
	case models.SyncStatusIdle, models.SyncStatusCompleted:
		return Affordances{CanSync: true}
	case models.SyncStatusSyncing, models.SyncStatusBackground:
		return Affordances{CanPause: true, CanStop: true}
	case models.SyncStatusPaused:
		return Affordances{CanResume: syncStopped, CanStop: true}
	case models.SyncStatusError:
		return Affordances{CanRetry: true}
	}
	return Affordances{}
}
