package sensor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	defaultReadTimeout = time.Second
	readChunk          = 256
	// lines longer than this are discarded as noise
	maxLineLength = 4096
)

// Link is an open sensor connection delivering protocol lines.
type Link interface {
	// ReadLine returns the next line without its terminator, or "" when the
	// read timed out before a full line arrived.
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Dialer opens a Link.
type Dialer interface {
	Open(ctx context.Context) (Link, error)
	Address() string
}

// SerialDialer opens a serial port.
type SerialDialer struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// Address implements Dialer.
func (d SerialDialer) Address() string { return fmt.Sprintf("%s@%d", d.Port, d.Baud) }

// Open implements Dialer.
func (d SerialDialer) Open(_ context.Context) (Link, error) {
	port, err := serial.Open(d.Port, &serial.Mode{BaudRate: d.Baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLink, d.Port, err)
	}
	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: set read timeout: %v", ErrLink, err)
	}
	return newPortLink(port), nil
}

// port is the subset of serial.Port the link needs.
type port interface {
	Read(p []byte) (int, error)
	Close() error
}

type portLink struct {
	port    port
	pending []byte
	chunk   []byte

	closeOnce sync.Once
	closeErr  error
}

func newPortLink(p port) *portLink {
	return &portLink{port: p, chunk: make([]byte, readChunk)}
}

// ReadLine implements Link.
func (l *portLink) ReadLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := l.pending[:i]
			l.pending = l.pending[i+1:]
			return decode(line), nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := l.port.Read(l.chunk)
		if err != nil {
			return "", fmt.Errorf("%w: read: %v", ErrLink, err)
		}
		if n == 0 {
			return "", nil
		}
		l.pending = append(l.pending, l.chunk[:n]...)
		if len(l.pending) > maxLineLength {
			l.pending = l.pending[:0]
		}
	}
}

// Close implements Link.
func (l *portLink) Close() error {
	l.closeOnce.Do(func() { l.closeErr = l.port.Close() })
	return l.closeErr
}

// decode drops invalid UTF-8 and the trailing carriage return.
func decode(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
