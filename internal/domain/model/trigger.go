package model

import "time"

// CaptureTrigger is a decided instruction to perform a capture.
// It is created by the debouncer and consumed exactly once by the capture worker.
type CaptureTrigger struct {
	ID         string    // unique id for log correlation
	Reason     string    // e.g. "ultra_state_change:PRESENT"
	Distance   string    // optional
	State      string    // optional
	Identity   string    // last identity read before the trigger, optional
	EnqueuedAt time.Time // set by the scheduler when the trigger passes the cooldown gate
}

// HasIdentity reports whether an identity is attached to the trigger.
func (t CaptureTrigger) HasIdentity() bool { return t.Identity != "" }
