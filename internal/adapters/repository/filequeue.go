package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

const defaultFileMode = 0o644

// FileQueue is a durable at-least-once queue of award payloads stored as one
// JSON object per line. Append and DrainOnce share one mutex so a drain's
// full rewrite never loses a concurrent append.
type FileQueue struct {
	mu     sync.Mutex
	path   string
	mode   uint32
	logger logger.Logger
}

// NewFileQueue creates a queue backed by path. Call Init before use.
func NewFileQueue(path string, opts ...Option) *FileQueue {
	q := &FileQueue{path: path, mode: defaultFileMode}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Get().Named("offline_queue")
	}
	return q
}

// Path returns the backing file path.
func (q *FileQueue) Path() string { return q.path }

// Init creates the backing file (and its directory) if it does not exist.
func (q *FileQueue) Init() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if dir := filepath.Dir(q.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create dir: %v", ErrQueueStorage, err)
		}
	}
	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_RDONLY, fs.FileMode(q.mode))
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrQueueStorage, q.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueStorage, err)
	}
	lines, err := q.readLines()
	if err == nil {
		metrics.UpdateOfflineQueueSize(len(lines))
	}
	return nil
}

// Append persists p as one new line at the end of the queue.
func (q *FileQueue) Append(ctx context.Context, p model.AwardPayload) error {
	line, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrQueueStorage, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fs.FileMode(q.mode))
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrQueueStorage, q.path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: append: %v", ErrQueueStorage, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync: %v", ErrQueueStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrQueueStorage, err)
	}

	if lines, err := q.readLines(); err == nil {
		metrics.UpdateOfflineQueueSize(len(lines))
	}
	q.logger.Info(ctx, "award queued offline",
		logger.String("id", p.ID),
		logger.String("identity", p.Identity),
		logger.Int("points", p.Points),
	)
	return nil
}

// DrainOnce attempts queued entries in file order until maxBatch of them
// have succeeded. Succeeded entries and malformed lines are removed; failed
// entries and everything after the batch limit are kept verbatim in their
// original order. The file is replaced atomically.
func (q *FileQueue) DrainOnce(ctx context.Context, maxBatch int, attempt model.DeliveryAttempt) (model.DrainResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res model.DrainResult
	lines, err := q.readLines()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return res, err
	}
	if len(lines) == 0 {
		return res, nil
	}

	remaining := make([]string, 0, len(lines))
	changed := false
	for _, raw := range lines {
		if res.Delivered >= maxBatch || ctx.Err() != nil {
			remaining = append(remaining, raw)
			res.Carried++
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			changed = true
			continue
		}
		var p model.AwardPayload
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			res.Malformed++
			changed = true
			continue
		}
		if attempt(ctx, p) {
			res.Delivered++
			changed = true
			continue
		}
		remaining = append(remaining, line)
		res.Kept++
	}

	if changed {
		if err := q.rewrite(remaining); err != nil {
			return res, err
		}
	}

	metrics.UpdateOfflineQueueSize(len(remaining))
	metrics.RecordOfflineDrained(res.Delivered)
	metrics.RecordOfflineMalformed(res.Malformed)
	if res.Delivered > 0 || res.Malformed > 0 {
		q.logger.Info(ctx, "offline queue drained",
			logger.Int("delivered", res.Delivered),
			logger.Int("kept", res.Kept),
			logger.Int("carried", res.Carried),
			logger.Int("malformed", res.Malformed),
		)
	}
	return res, nil
}

// Len returns the number of non-empty lines currently queued.
func (q *FileQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lines, err := q.readLines()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n, nil
}

// Entries returns the parseable queued payloads in file order.
func (q *FileQueue) Entries() ([]model.AwardPayload, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lines, err := q.readLines()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	out := make([]model.AwardPayload, 0, len(lines))
	for _, l := range lines {
		var p model.AwardPayload
		if json.Unmarshal([]byte(l), &p) == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// readLines must be called with q.mu held.
func (q *FileQueue) readLines() ([]string, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrQueueStorage, q.path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// rewrite replaces the file with lines via a temp file and rename.
// It must be called with q.mu held.
func (q *FileQueue) rewrite(lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrQueueStorage, err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp: %v", ErrQueueStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp: %v", ErrQueueStorage, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp: %v", ErrQueueStorage, err)
	}
	if err := os.Chmod(tmp.Name(), fs.FileMode(q.mode)); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod temp: %v", ErrQueueStorage, err)
	}
	if err := os.Rename(tmp.Name(), q.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: replace %s: %v", ErrQueueStorage, q.path, err)
	}
	return nil
}
