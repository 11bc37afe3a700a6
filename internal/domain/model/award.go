package model

import "time"

// EndpointList is an ordered sequence of named remote procedures tried in
// order until one succeeds.
type EndpointList []string

// AwardPayload is a single point award. It is immutable once built and may be
// persisted verbatim as one line of the offline queue.
type AwardPayload struct {
	ID        string       `json:"id"`
	Identity  string       `json:"identity"`
	ProfileID string       `json:"profile_id,omitempty"` // empty when the lookup has not succeeded yet
	Points    int          `json:"points"`
	Reason    string       `json:"reason"`
	Endpoints EndpointList `json:"endpoints"`
	CreatedAt time.Time    `json:"created_at"`
}

// Resolved reports whether the payload carries a backend profile id.
func (p AwardPayload) Resolved() bool { return p.ProfileID != "" }

// WithProfile returns a copy of p bound to profileID.
func (p AwardPayload) WithProfile(profileID string) AwardPayload {
	p.ProfileID = profileID
	return p
}
