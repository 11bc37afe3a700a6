package model

import "context"

// DeliveryAttempt tries to deliver one queued payload and reports success.
type DeliveryAttempt func(ctx context.Context, p AwardPayload) bool

// DrainResult summarizes one offline queue drain pass.
type DrainResult struct {
	Delivered int // attempted and succeeded, removed
	Kept      int // attempted and failed, rewritten
	Carried   int // not attempted because the batch was full
	Malformed int // unparseable lines, removed
}

// Remaining is the number of entries left queued after the pass.
func (r DrainResult) Remaining() int { return r.Kept + r.Carried }
