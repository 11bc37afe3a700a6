// Package model contains domain models passed between layers.
package model

// RecordKind discriminates the SensorRecord variants.
type RecordKind int

// Sensor record kinds.
const (
	KindUnrecognized RecordKind = iota
	KindStateEvent
	KindIdentityRead
	KindHeartbeat
)

// String returns the metric/log label for the kind.
func (k RecordKind) String() string {
	switch k {
	case KindStateEvent:
		return "state_event"
	case KindIdentityRead:
		return "identity_read"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unrecognized"
	}
}

// SensorRecord is one classified line from the sensor link.
// Implementations are immutable value types.
type SensorRecord interface {
	Kind() RecordKind
}

// StateEvent reports the presence state and measured distance.
// Either field may be empty when the sensor omitted it.
type StateEvent struct {
	State    string
	Distance string
}

// IdentityRead reports an identity (RFID UID) scanned at the device.
type IdentityRead struct {
	Identity string
}

// Heartbeat is a keep-alive line.
type Heartbeat struct{}

// Unrecognized carries a line the parser could not classify.
type Unrecognized struct {
	Raw string
}

// Kind implements SensorRecord.
func (StateEvent) Kind() RecordKind { return KindStateEvent }

// Kind implements SensorRecord.
func (IdentityRead) Kind() RecordKind { return KindIdentityRead }

// Kind implements SensorRecord.
func (Heartbeat) Kind() RecordKind { return KindHeartbeat }

// Kind implements SensorRecord.
func (Unrecognized) Kind() RecordKind { return KindUnrecognized }
