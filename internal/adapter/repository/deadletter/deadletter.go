package deadletter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/domain"
)

const (
	segmentPrefix = "letters-"
	segmentSuffix = ".ndjson"
	filePerm      = 0o644
	maxLineBytes  = 1 << 20
)

// ErrFull is returned when a write would push the log past its disk cap.
var ErrFull = errors.New("dead-letter log is full")

// Log implements domain.DeadLetterRepository as size-rotated NDJSON segment
// files in a directory.
type Log struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger
	metrics        *metrics.Metrics

	mu          sync.Mutex
	current     *os.File
	currentSeq  int
	currentSize int64
	totalSize   int64
}

// New opens the log in dir, appending to the newest segment if one exists.
func New(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger, m *metrics.Metrics) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dead-letter directory %s: %w", dir, err)
	}

	l := &Log{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "dead_letter_log"),
		metrics:        m,
	}
	if err := l.openLatest(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends one rejected record.
func (l *Log) Write(ctx context.Context, letter domain.DeadLetter) error {
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.totalSize+int64(len(data)) > l.maxTotalSize {
		return fmt.Errorf("%w (%d + %d > %d bytes)", ErrFull, l.totalSize, len(data), l.maxTotalSize)
	}
	if l.current == nil {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.current.Write(data)
	l.currentSize += int64(n)
	l.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write dead letter: %w", err)
	}
	if l.metrics != nil {
		l.metrics.DeadLettered.Inc()
	}

	if l.currentSize >= l.maxSegmentSize {
		if err := l.rotate(); err != nil {
			l.logger.Error("Failed to rotate dead-letter segment", "error", err)
		}
	}
	return nil
}

// Replay hands every stored letter to handler in write order. Lines that do
// not decode are skipped. The first handler error stops the replay.
func (l *Log) Replay(ctx context.Context, handler func(letter domain.DeadLetter) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		if err := l.current.Sync(); err != nil {
			l.logger.Warn("Failed to sync dead-letter segment before replay", "error", err)
		}
	}

	segments, err := l.segments()
	if err != nil {
		return err
	}
	l.logger.Info("Replaying dead letters", "segment_count", len(segments))

	for _, path := range segments {
		if err := l.replaySegment(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) replaySegment(ctx context.Context, path string, handler func(domain.DeadLetter) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var letter domain.DeadLetter
		if err := json.Unmarshal(scanner.Bytes(), &letter); err != nil {
			l.logger.Warn("Skipping undecodable dead letter", "error", err, "segment", path)
			continue
		}
		if err := handler(letter); err != nil {
			return fmt.Errorf("dead-letter replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes every segment and starts a fresh one.
func (l *Log) Truncate(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeCurrent()
	segments, err := l.segments()
	if err != nil {
		return err
	}
	for _, path := range segments {
		if err := os.Remove(path); err != nil {
			l.logger.Error("Failed to remove dead-letter segment", "path", path, "error", err)
		}
	}
	l.currentSeq = 0
	l.totalSize = 0
	l.logger.Info("Dead-letter log truncated", "segments", len(segments))
	return l.rotate()
}

// Size returns the bytes currently held on disk.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSize
}

// Close flushes and closes the open segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	err := l.current.Sync()
	if cerr := l.current.Close(); err == nil {
		err = cerr
	}
	l.current = nil
	return err
}

func (l *Log) closeCurrent() {
	if l.current == nil {
		return
	}
	if err := l.current.Sync(); err != nil {
		l.logger.Error("Failed to sync dead-letter segment", "error", err)
	}
	if err := l.current.Close(); err != nil {
		l.logger.Error("Failed to close dead-letter segment", "error", err)
	}
	l.current = nil
}

func (l *Log) rotate() error {
	l.closeCurrent()

	l.currentSeq++
	path := filepath.Join(l.dir, segmentName(l.currentSeq))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create dead-letter segment %s: %w", path, err)
	}
	l.current = f
	l.currentSize = 0
	l.logger.Debug("Opened new dead-letter segment", "path", path)
	return nil
}

func (l *Log) openLatest() error {
	segments, err := l.segments()
	if err != nil {
		return err
	}

	var total int64
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat segment %s: %w", path, err)
		}
		total += info.Size()
	}
	l.totalSize = total

	if len(segments) == 0 {
		return l.rotate()
	}

	latest := segments[len(segments)-1]
	seq, _ := segmentSeq(filepath.Base(latest))
	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", latest, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat segment %s: %w", latest, err)
	}

	l.current = f
	l.currentSeq = seq
	l.currentSize = info.Size()
	l.logger.Info("Opened existing dead-letter log", "segments", len(segments), "bytes", total)

	if l.currentSize >= l.maxSegmentSize {
		return l.rotate()
	}
	return nil
}

// segments lists segment files ordered by sequence number.
func (l *Log) segments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead-letter directory: %w", err)
	}

	type seg struct {
		seq  int
		path string
	}
	var found []seg
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if seq, ok := segmentSeq(e.Name()); ok {
			found = append(found, seg{seq, filepath.Join(l.dir, e.Name())})
		}
	}
	slices.SortFunc(found, func(a, b seg) int { return a.seq - b.seq })

	paths := make([]string, len(found))
	for i, s := range found {
		paths[i] = s.path
	}
	return paths, nil
}

func segmentName(seq int) string {
	return fmt.Sprintf("%s%08d%s", segmentPrefix, seq, segmentSuffix)
}

func segmentSeq(name string) (int, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix))
	if err != nil {
		return 0, false
	}
	return n, true
}
