// Package cache persists the most recent fresh capture together with the
// window title and pid that were active when it was taken.
//
// The record is a single JSON document replaced with write-then-rename, so a
// reader sees either the previous record or the new one, never a mix.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/capshim/internal/imgcodec"
	"github.com/bryanchriswhite/capshim/internal/logger"
)

// ErrNotFound is returned when no usable record exists
var ErrNotFound = errors.New("no cached snapshot")

// Meta is the window metadata stored alongside the cached image
type Meta struct {
	Title      string    `json:"title"`
	PID        int       `json:"pid"`
	CapturedAt time.Time `json:"captured_at"`
}

// HasTitle reports whether the title field is usable
func (m Meta) HasTitle() bool {
	return m.Title != ""
}

// HasPID reports whether the pid field is usable
func (m Meta) HasPID() bool {
	return m.PID > 0
}

// Record is a cached snapshot
type Record struct {
	Meta

	// Encoded is the image exactly as it is stored
	Encoded []byte
	Format  string

	// Image is populated by Load
	Image image.Image
}

// file is the on-disk layout
type file struct {
	Meta
	Format string `json:"format"`
	Image  []byte `json:"image"`
}

// Store reads and writes the snapshot record at a fixed path
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the record location
func (s *Store) Path() string {
	return s.path
}

// Save replaces the cached record
func (s *Store) Save(rec Record) error {
	if len(rec.Encoded) == 0 {
		return fmt.Errorf("refusing to cache empty image")
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now()
	}

	data, err := json.Marshal(file{
		Meta:   rec.Meta,
		Format: rec.Format,
		Image:  rec.Encoded,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return err
	}

	logger.WithComponent("cache").Debug().
		Str("path", s.path).
		Int("bytes", len(rec.Encoded)).
		Str("title", rec.Title).
		Int("pid", rec.PID).
		Msg("Snapshot cached")
	return nil
}

// Load reads the cached record and decodes its image
func (s *Store) Load() (*Record, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(f.Image) == 0 {
		return nil, fmt.Errorf("%w: record has no image", ErrNotFound)
	}

	img, format, err := imgcodec.Decode(f.Image)
	if err != nil {
		return nil, fmt.Errorf("cached snapshot unusable: %w", err)
	}

	return &Record{
		Meta:    f.Meta,
		Encoded: f.Image,
		Format:  format,
		Image:   img,
	}, nil
}

// LoadMeta reads only the title, pid and timestamp
func (s *Store) LoadMeta() (Meta, error) {
	f, err := s.read()
	if err != nil {
		return Meta{}, err
	}
	return f.Meta, nil
}

// Clear removes the cached record
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

func (s *Store) read() (*file, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &f, nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	return nil
}
