package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"tierup/pkg/errors"
)

// SavedFile describes where one image landed on disk.
type SavedFile struct {
	Name string
	Path string
	Size int64
}

// Store is the seam the collector saves through.
type Store interface {
	Save(title, sourceURL string, data []byte) (SavedFile, error)
}

// Manager owns the output directory. Filenames are deterministic for a
// given title and URL; name collisions get counter suffixes rather than
// overwriting. Thread-safe.
type Manager struct {
	outputDir string
	claimed   map[string]bool
	mu        sync.RWMutex
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace  = regexp.MustCompile(`\s+`)
	underscores = regexp.MustCompile(`_+`)
)

const maxBaseNameLen = 100

// NewManager creates the output directory if needed and verifies it is
// writable. An unusable directory is an environment failure, reported
// before any browser work starts.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeEnvironment,
			fmt.Sprintf("cannot create output directory %s", outputDir), err)
	}

	m := &Manager{
		outputDir: outputDir,
		claimed:   make(map[string]bool),
	}

	if err := m.probeWritable(); err != nil {
		return nil, err
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeEnvironment,
			fmt.Sprintf("cannot read output directory %s", outputDir), err)
	}

	return m, nil
}

// probeWritable creates and removes a scratch file so permission problems
// surface up front.
func (m *Manager) probeWritable() error {
	probe, err := os.CreateTemp(m.outputDir, ".tierup-probe-*")
	if err != nil {
		return errors.Wrap(errors.ErrorTypeEnvironment,
			fmt.Sprintf("output directory %s is not writable", m.outputDir), err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// scanExistingFiles seeds the claimed-name set so reruns into the same
// directory never overwrite earlier covers.
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			m.claimed[entry.Name()] = true
		}
	}
	return nil
}

// SanitizeFilename turns a page title into a safe base name. Unsafe
// characters and whitespace become underscores; an empty result falls
// back to a short hash of the source URL.
func SanitizeFilename(title, sourceURL string) string {
	name := unsafeChars.ReplaceAllString(title, "_")
	name = whitespace.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")

	if runes := []rune(name); len(runes) > maxBaseNameLen {
		name = strings.Trim(string(runes[:maxBaseNameLen]), "_.")
	}

	if name == "" {
		sum := sha1.Sum([]byte(sourceURL))
		name = "image_" + hex.EncodeToString(sum[:])[:8]
	}
	return name
}

// extensionFor picks a file extension from the source URL path, defaulting
// to .jpg for anything unrecognized.
func extensionFor(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ".jpg"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}

// FilenameFor claims a free filename for the title: the sanitized base
// name, or base_2, base_3... when earlier items or files already hold it.
func (m *Manager) FilenameFor(title, sourceURL string) string {
	base := SanitizeFilename(title, sourceURL)
	ext := extensionFor(sourceURL)

	m.mu.Lock()
	defer m.mu.Unlock()

	name := base + ext
	for counter := 2; m.claimed[name]; counter++ {
		name = fmt.Sprintf("%s_%d%s", base, counter, ext)
	}
	m.claimed[name] = true
	return name
}

// Save writes the image atomically under a deterministic name and returns
// where it landed.
func (m *Manager) Save(title, sourceURL string, data []byte) (SavedFile, error) {
	name := m.FilenameFor(title, sourceURL)
	target := filepath.Join(m.outputDir, name)

	tempFile := target + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		m.release(name)
		return SavedFile{}, errors.Wrap(errors.ErrorTypeEnvironment,
			"failed to create temporary file", err)
	}

	_, writeErr := out.Write(data)
	closeErr := out.Close()

	if writeErr != nil {
		os.Remove(tempFile)
		m.release(name)
		return SavedFile{}, errors.Wrap(errors.ErrorTypeEnvironment,
			"failed to write image data", writeErr)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		m.release(name)
		return SavedFile{}, errors.Wrap(errors.ErrorTypeEnvironment,
			"failed to close image file", closeErr)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		m.release(name)
		return SavedFile{}, errors.Wrap(errors.ErrorTypeEnvironment,
			"failed to move image into place", err)
	}

	return SavedFile{Name: name, Path: target, Size: int64(len(data))}, nil
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, name)
}

// Exists reports whether a file with the given name is present or claimed.
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.claimed[name] {
		return true
	}
	_, err := os.Stat(filepath.Join(m.outputDir, name))
	return err == nil
}

// Dir returns the output directory path.
func (m *Manager) Dir() string {
	return m.outputDir
}

// SavedCount returns how many names are claimed in this directory.
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.claimed)
}
