package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/V4T54L/tripflow/internal/domain"
)

// decoder yields one raw record per call and io.EOF when the input is exhausted.
type decoder interface {
	next() (domain.RawRecord, error)
}

type delimitedDecoder struct {
	r      *csv.Reader
	header []string
}

func newDelimitedDecoder(r io.Reader, sep rune) *delimitedDecoder {
	cr := csv.NewReader(r)
	cr.Comma = sep
	// Every row must have the header's width.
	cr.FieldsPerRecord = 0
	return &delimitedDecoder{r: cr}
}

func (d *delimitedDecoder) next() (domain.RawRecord, error) {
	if d.header == nil {
		header, err := d.r.Read()
		if err != nil {
			return nil, err
		}
		if len(header) > 0 {
			header[0] = strings.TrimPrefix(header[0], "\ufeff")
		}
		d.header = header
	}

	row, err := d.r.Read()
	if err != nil {
		return nil, err
	}
	rec := make(domain.RawRecord, len(d.header))
	for i, name := range d.header {
		// Cells stay raw text so flag columns are never auto-typed.
		if row[i] == "" {
			rec[name] = nil
			continue
		}
		rec[name] = row[i]
	}
	return rec, nil
}

type lineJSONDecoder struct {
	r    *bufio.Reader
	line int
}

func newLineJSONDecoder(r io.Reader) *lineJSONDecoder {
	return &lineJSONDecoder{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *lineJSONDecoder) next() (domain.RawRecord, error) {
	for {
		raw, err := d.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			return nil, err
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		d.line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var rec domain.RawRecord
		if uerr := json.Unmarshal(raw, &rec); uerr != nil {
			return nil, fmt.Errorf("line %d: %w", d.line, uerr)
		}
		if rec == nil {
			return nil, fmt.Errorf("line %d: expected a JSON object", d.line)
		}
		return rec, nil
	}
}
