package camera

import "errors"

// ErrCapture is the single error kind reported by the camera collaborator.
var ErrCapture = errors.New("camera capture failed")
