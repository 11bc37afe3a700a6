// Package camera acquires single JPEG frames from a local video device.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/pointbin/pkg/logger"
)

// Device is an opened camera. It is owned by a single goroutine.
type Device interface {
	// Capture grabs one frame and returns it JPEG-encoded.
	Capture(ctx context.Context) ([]byte, error)
	// Release frees the device. It is safe to call more than once.
	Release() error
}

// Opener opens the camera.
type Opener interface {
	Open(ctx context.Context) (Device, error)
}

// FFmpegOpener grabs frames by running ffmpeg once per capture.
type FFmpegOpener struct {
	command     string
	device      string
	inputFormat string
	logger      logger.Logger
}

// NewFFmpegOpener creates an opener for /dev/video<index>.
func NewFFmpegOpener(index int, opts ...Option) *FFmpegOpener {
	o := &FFmpegOpener{
		command:     "ffmpeg",
		device:      "/dev/video" + strconv.Itoa(index),
		inputFormat: "v4l2",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("camera")
	}
	return o
}

// Open checks that the device and the grabber binary exist.
func (o *FFmpegOpener) Open(ctx context.Context) (Device, error) {
	if _, err := os.Stat(o.device); err != nil {
		return nil, fmt.Errorf("%w: cannot open camera %s: %v", ErrCapture, o.device, err)
	}
	bin, err := exec.LookPath(o.command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrCapture, o.command, err)
	}
	o.logger.Info(ctx, "camera opened", logger.String("device", o.device))
	return &ffmpegDevice{bin: bin, device: o.device, inputFormat: o.inputFormat}, nil
}

type ffmpegDevice struct {
	mu          sync.Mutex
	bin         string
	device      string
	inputFormat string
	released    bool
}

func (d *ffmpegDevice) args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", d.inputFormat, "-i", d.device,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-",
	}
}

// Capture implements Device.
func (d *ffmpegDevice) Capture(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	released := d.released
	d.mu.Unlock()
	if released {
		return nil, fmt.Errorf("%w: device released", ErrCapture)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.bin, d.args()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: failed to read frame: %v: %s", ErrCapture, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCapture)
	}
	return stdout.Bytes(), nil
}

// Release implements Device.
func (d *ffmpegDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}
