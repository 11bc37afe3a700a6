package backend

import (
	"errors"

	"github.com/okian/pointbin/internal/domain/model"
)

var (
	// ErrNotConfigured is returned when the backend URL or service key is missing.
	ErrNotConfigured = errors.New("backend not configured")
	// ErrLookup is returned when the profile lookup could not be completed.
	ErrLookup = errors.New("profile lookup failed")
	// ErrProfileNotFound is returned when no profile matches the identity.
	ErrProfileNotFound = model.ErrProfileNotFound
	// ErrDelivery is returned when every award endpoint failed.
	ErrDelivery = errors.New("award delivery failed")
)
