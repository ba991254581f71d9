package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"raygrid/internal/config"
)

// fileSink appends to one log file. When the next line would push it past
// maxBytes the file becomes backup 1 and older backups shift up by one
// (raygrid.log.1.gz, raygrid.log.2.gz, ...).
type fileSink struct {
	path     string
	maxBytes int64
	keep     int
	maxAge   time.Duration
	compress bool
	now      func() time.Time

	mu      sync.Mutex
	file    *os.File
	written int64
}

func openFileSink(cfg config.LoggingConfig) (*fileSink, error) {
	var problems []string
	if cfg.MaxSizeMB <= 0 {
		problems = append(problems, "RAYGRID_LOG_MAX_SIZE_MB must be positive")
	}
	if cfg.MaxBackups < 0 {
		problems = append(problems, "RAYGRID_LOG_MAX_BACKUPS must be non-negative")
	}
	if cfg.MaxAgeDays < 0 {
		problems = append(problems, "RAYGRID_LOG_MAX_AGE_DAYS must be non-negative")
	}
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	s := &fileSink{
		path:     cfg.Path,
		maxBytes: int64(cfg.MaxSizeMB) << 20,
		keep:     cfg.MaxBackups,
		maxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress: cfg.Compress,
		now:      time.Now,
	}
	if err := s.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSink) open(mode int) error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	s.file, s.written = file, info.Size()
	return nil
}

// Write never splits a line across files. A line longer than maxBytes still
// lands whole in a fresh file.
func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written > 0 && s.written+int64(len(p)) > s.maxBytes {
		if err := s.roll(); err != nil {
			return 0, err
		}
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *fileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

type backup struct {
	index int
	path  string
}

// backups lists numbered backups, highest index first.
func (s *fileSink) backups() ([]backup, error) {
	entries, err := os.ReadDir(filepath.Dir(s.path))
	if err != nil {
		return nil, err
	}
	prefix := filepath.Base(s.path) + "."
	var found []backup
	for _, entry := range entries {
		rest, ok := strings.CutPrefix(entry.Name(), prefix)
		if !ok {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(rest, ".gz"))
		if err != nil || index < 1 {
			continue
		}
		found = append(found, backup{index: index, path: filepath.Join(filepath.Dir(s.path), entry.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index > found[j].index })
	return found, nil
}

func (s *fileSink) roll() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	existing, err := s.backups()
	if err != nil {
		return fmt.Errorf("list log backups: %w", err)
	}
	//1.- Shift from the top down so no rename overwrites a newer backup.
	for _, b := range existing {
		if s.keep > 0 && b.index >= s.keep {
			_ = os.Remove(b.path)
			continue
		}
		suffix := ""
		if strings.HasSuffix(b.path, ".gz") {
			suffix = ".gz"
		}
		if err := os.Rename(b.path, fmt.Sprintf("%s.%d%s", s.path, b.index+1, suffix)); err != nil {
			return fmt.Errorf("shift log backup: %w", err)
		}
	}
	first := s.path + ".1"
	if err := os.Rename(s.path, first); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	if s.compress {
		if err := gzipInPlace(first); err != nil {
			return err
		}
	}
	//2.- Age limits apply after the shift; backup 1 is always fresh.
	if s.maxAge > 0 {
		s.expire()
	}
	return s.open(os.O_TRUNC)
}

func (s *fileSink) expire() {
	remaining, err := s.backups()
	if err != nil {
		return
	}
	cutoff := s.now().Add(-s.maxAge)
	for _, b := range remaining {
		if info, err := os.Stat(b.path); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(b.path)
		}
	}
}

// gzipInPlace replaces path with path.gz.
func gzipInPlace(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return fmt.Errorf("create compressed log: %w", err)
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return fmt.Errorf("compress log: %w", err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("compress log: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
