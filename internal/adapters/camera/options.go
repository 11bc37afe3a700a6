package camera

import "github.com/okian/pointbin/pkg/logger"

// Option applies a configuration option to the FFmpegOpener.
type Option func(*FFmpegOpener)

// WithCommand sets the frame grabber binary.
func WithCommand(cmd string) Option {
	return func(o *FFmpegOpener) {
		if cmd != "" {
			o.command = cmd
		}
	}
}

// WithDevicePath overrides the device derived from the camera index.
func WithDevicePath(path string) Option {
	return func(o *FFmpegOpener) {
		if path != "" {
			o.device = path
		}
	}
}

// WithInputFormat sets the ffmpeg input format (default v4l2).
func WithInputFormat(format string) Option {
	return func(o *FFmpegOpener) {
		if format != "" {
			o.inputFormat = format
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *FFmpegOpener) {
		if l != nil {
			o.logger = l
		}
	}
}
