package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const tempPrefix = "transcribe-"

// TempStore hands out uniquely named, request-scoped audio files under one
// directory and remembers which are still live so they can be swept on
// shutdown.
type TempStore struct {
	dir string
	log zerolog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

// NewTempStore creates dir if needed. An empty dir means os.TempDir().
func NewTempStore(dir string, log zerolog.Logger) (*TempStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &TempStore{
		dir:  dir,
		log:  log.With().Str("component", "tempstore").Logger(),
		live: make(map[string]struct{}),
	}, nil
}

// TempFile is an acquired audio file. Release it exactly once; extra calls
// are no-ops.
type TempFile struct {
	Path string

	store *TempStore
	once  sync.Once
}

// Acquire writes data to a fresh file named transcribe-<uuid>.<format>.
// The file is complete and closed when Acquire returns.
func (s *TempStore) Acquire(data []byte, format string) (*TempFile, error) {
	format = strings.TrimPrefix(format, ".")
	if format == "" || strings.ContainsAny(format, `/\`) {
		return nil, fmt.Errorf("invalid temp file extension %q", format)
	}

	path := filepath.Join(s.dir, tempPrefix+uuid.NewString()+"."+format)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close: %w", err)
	}

	s.mu.Lock()
	s.live[path] = struct{}{}
	s.mu.Unlock()

	s.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("temp file acquired")
	return &TempFile{Path: path, store: s}, nil
}

// Release deletes the file. Failures are logged, never returned.
func (f *TempFile) Release() {
	f.once.Do(func() {
		f.store.remove(f.Path)
	})
}

// With acquires a temp file, runs fn with its path, and always releases it.
func (s *TempStore) With(data []byte, format string, fn func(path string) error) error {
	tf, err := s.Acquire(data, format)
	if err != nil {
		return err
	}
	defer tf.Release()
	return fn(tf.Path)
}

func (s *TempStore) remove(path string) {
	s.mu.Lock()
	delete(s.live, path)
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", path).Msg("temp file cleanup failed")
		return
	}
	s.log.Debug().Str("path", path).Msg("temp file released")
}

// Active returns the number of acquired files not yet released.
func (s *TempStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Dir returns the directory files are created in.
func (s *TempStore) Dir() string { return s.dir }

// Close removes every file still live, e.g. when shutdown interrupts a handler.
func (s *TempStore) Close() {
	s.mu.Lock()
	paths := make([]string, 0, len(s.live))
	for p := range s.live {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	for _, p := range paths {
		s.remove(p)
	}
	if len(paths) > 0 {
		s.log.Info().Int("files", len(paths)).Msg("removed temp files left by interrupted requests")
	}
}

// SweepStale removes transcribe-* files older than maxAge left behind by a
// previous process. Returns the number removed.
func (s *TempStore) SweepStale(maxAge time.Duration) int {
	matches, err := filepath.Glob(filepath.Join(s.dir, tempPrefix+"*"))
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, path := range matches {
		s.mu.Lock()
		_, isLive := s.live[path]
		s.mu.Unlock()
		if isLive {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("stale temp file cleanup failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("files", removed).Msg("swept stale temp files")
	}
	return removed
}
