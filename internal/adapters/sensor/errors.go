package sensor

import "errors"

// ErrLink is returned for any sensor link I/O failure.
var ErrLink = errors.New("sensor link error")
