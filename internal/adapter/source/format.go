package source

import (
	"path/filepath"
	"strings"
)

// Format identifies how a staged file is decoded.
type Format int

const (
	FormatUnsupported Format = iota
	FormatDelimited
	FormatLineJSON
)

func (f Format) String() string {
	switch f {
	case FormatDelimited:
		return "delimited"
	case FormatLineJSON:
		return "line_json"
	default:
		return "unsupported"
	}
}

const zstdExt = ".zst"

// Detect classifies a staged file by its extension alone. A trailing .zst is
// ignored and the inner extension decides.
func Detect(path string) Format {
	switch innerExt(path) {
	case ".csv", ".tsv":
		return FormatDelimited
	case ".json", ".jsonl", ".ndjson":
		return FormatLineJSON
	default:
		return FormatUnsupported
	}
}

// IsCompressed reports whether the file is zstd-compressed.
func IsCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), zstdExt)
}

func innerExt(path string) string {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, zstdExt)
	return filepath.Ext(name)
}

// separator returns the field separator for delimited files.
func separator(path string) rune {
	if innerExt(path) == ".tsv" {
		return '\t'
	}
	return ','
}
