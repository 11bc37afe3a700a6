package model

import "errors"

// ErrProfileNotFound is returned by profile lookups that completed but found
// no profile for the identity.
var ErrProfileNotFound = errors.New("profile not found")
