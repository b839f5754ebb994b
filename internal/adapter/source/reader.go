package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/V4T54L/tripflow/internal/domain"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupportedFormat is yielded for files Detect cannot classify.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Reader streams a staged file as fixed-size batches of raw records.
type Reader struct {
	path       string
	format     Format
	compressed bool
	batchSize  int
	logger     *slog.Logger
}

// NewReader prepares a reader for path. Nothing is opened until Batches is ranged over.
func NewReader(path string, batchSize int, logger *slog.Logger) *Reader {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Reader{
		path:       path,
		format:     Detect(path),
		compressed: IsCompressed(path),
		batchSize:  batchSize,
		logger:     logger.With("component", "source_reader", "path", path),
	}
}

// Format returns the detected format of the file.
func (r *Reader) Format() Format { return r.format }

// Batches returns a lazy sequence of batches holding at most batchSize records.
// Each range over the sequence re-opens the file. A decode failure discards the
// batch being built, yields one (nil, err) and ends the sequence.
func (r *Reader) Batches(ctx context.Context) iter.Seq2[[]domain.RawRecord, error] {
	return func(yield func([]domain.RawRecord, error) bool) {
		if r.format == FormatUnsupported {
			r.logger.Warn("Unsupported file format")
			yield(nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, r.path))
			return
		}

		dec, closeFn, err := r.open()
		if err != nil {
			yield(nil, err)
			return
		}
		defer closeFn()

		batch := make([]domain.RawRecord, 0, min(r.batchSize, 4096))
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			rec, err := dec.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				r.logger.Error("Failed to decode staged file", "error", err, "discarded", len(batch))
				yield(nil, fmt.Errorf("source: decode %s: %w", r.path, err))
				return
			}

			batch = append(batch, rec)
			if len(batch) == r.batchSize {
				if !yield(batch, nil) {
					return
				}
				batch = make([]domain.RawRecord, 0, min(r.batchSize, 4096))
			}
		}

		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

func (r *Reader) open() (decoder, func(), error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, nil, fmt.Errorf("source: open %s: %w", r.path, err)
	}

	var in io.Reader = f
	closeFn := func() { _ = f.Close() }

	if r.compressed {
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("source: zstd %s: %w", r.path, err)
		}
		in = zr
		closeFn = func() {
			zr.Close()
			_ = f.Close()
		}
	}

	switch r.format {
	case FormatDelimited:
		return newDelimitedDecoder(in, separator(r.path)), closeFn, nil
	default:
		return newLineJSONDecoder(in), closeFn, nil
	}
}
