// Package transfer deposits raw trip files into the local staging directory.
// Each fetcher stages a source file only once; later fetches skip files whose
// name, size and modification time are unchanged.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// stage writes src to stagingDir/name through a temporary file, so readers
// never see a partially copied file.
func stage(stagingDir, name string, src io.Reader) (string, error) {
	dst := filepath.Join(stagingDir, filepath.Base(name))
	tmp, err := os.CreateTemp(stagingDir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file in %s: %w", stagingDir, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("move %s into place: %w", dst, err)
	}
	return dst, nil
}

const manifestName = ".fetched.json"

// manifest remembers which source files were already staged, keyed by name
// and holding size and modification time. It lives in the staging directory
// as a hidden file, so it outlives archiving and is never ingested.
type manifest struct {
	path    string
	Entries map[string]fileStamp `json:"entries"`
}

type fileStamp struct {
	Size    int64 `json:"size"`
	ModUnix int64 `json:"mod_unix"`
}

func loadManifest(stagingDir string) (*manifest, error) {
	m := &manifest{path: filepath.Join(stagingDir, manifestName), Entries: map[string]fileStamp{}}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fetch manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode fetch manifest %s: %w", m.path, err)
	}
	if m.Entries == nil {
		m.Entries = map[string]fileStamp{}
	}
	return m, nil
}

// seen reports whether a file with this name, size and mtime was staged before.
func (m *manifest) seen(name string, size int64, mod time.Time) bool {
	st, ok := m.Entries[name]
	return ok && st.Size == size && st.ModUnix == mod.Unix()
}

// record marks the file as staged and persists the manifest through stage,
// so a crash never leaves it half written.
func (m *manifest) record(name string, size int64, mod time.Time) error {
	m.Entries[name] = fileStamp{Size: size, ModUnix: mod.Unix()}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode fetch manifest: %w", err)
	}
	_, err = stage(filepath.Dir(m.path), manifestName, bytes.NewReader(data))
	return err
}
