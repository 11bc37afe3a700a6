package model

import "time"

// Status is a point-in-time view of the capture pipeline.
type Status struct {
	Started           bool      `json:"started"`
	SensorConnected   bool      `json:"sensor_connected"`
	SensorRecords     int64     `json:"sensor_records"`
	CaptureQueueDepth int       `json:"capture_queue_depth"`
	CapturesProcessed int64     `json:"captures_processed"`
	CapturesFailed    int64     `json:"captures_failed"`
	CooldownRemaining float64   `json:"cooldown_remaining_seconds"`
	LastCaptureAt     time.Time `json:"last_capture_at,omitzero"`
	AwardsActive      bool      `json:"awards_active"`
	OfflineQueueDepth int       `json:"offline_queue_depth"`
	LastIdentity      string    `json:"last_identity,omitempty"`
}
