package replay

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"raygrid/internal/logging"
)

// RetentionPolicy bounds what stays on disk. Zero fields disable a rule.
type RetentionPolicy struct {
	MaxBundles int
	MaxAge     time.Duration
}

// StorageStats is the outcome of the latest sweep.
type StorageStats struct {
	Bundles int
	Bytes   int64
	// Unclosed counts retained bundles without a header, the active one excluded.
	Unclosed  int
	Removed   int
	LastSweep time.Time
}

// storedBundle is one bundle found on disk.
type storedBundle struct {
	path     string
	bytes    int64
	lastUsed time.Time
	closed   bool
}

// Cleaner enforces a RetentionPolicy on the bundles under one directory.
// Directories without a readable manifest are never touched.
type Cleaner struct {
	dir    string
	policy RetentionPolicy
	active func() string
	log    *logging.Logger
	now    func() time.Time

	mu    sync.RWMutex
	stats StorageStats
}

// NewCleaner watches dir. active, when set, names the bundle being written so
// it survives every sweep.
func NewCleaner(dir string, policy RetentionPolicy, active func() string, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{
		dir:    dir,
		policy: policy,
		active: active,
		log:    logger.With(logging.String("component", "replay_cleaner")),
		now:    time.Now,
	}
}

// Run sweeps at once and then every interval until ctx ends.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.RunOnce()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one sweep.
func (c *Cleaner) RunOnce() {
	if c == nil || c.dir == "" {
		return
	}
	bundles, err := c.scan()
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.String("directory", c.dir), logging.Error(err))
		return
	}
	now := c.now()
	active := ""
	if c.active != nil {
		if name := c.active(); name != "" {
			active = filepath.Clean(name)
		}
	}
	keep, drop := c.policy.plan(bundles, active, now)

	stats := StorageStats{LastSweep: now}
	for _, b := range drop {
		if err := os.RemoveAll(b.path); err != nil {
			c.log.Warn("replay bundle removal failed", logging.String("bundle", filepath.Base(b.path)), logging.Error(err))
			keep = append(keep, b)
			continue
		}
		stats.Removed++
		c.log.Info("replay bundle removed",
			logging.String("bundle", filepath.Base(b.path)),
			logging.Duration("age", now.Sub(b.lastUsed)),
		)
	}
	for _, b := range keep {
		stats.Bundles++
		stats.Bytes += b.bytes
		if !b.closed && b.path != active {
			stats.Unclosed++
		}
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// Stats returns the result of the latest sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// plan splits bundles into those to keep and those to remove. The active
// bundle is always kept but still counts toward MaxBundles.
func (p RetentionPolicy) plan(bundles []storedBundle, active string, now time.Time) (keep, drop []storedBundle) {
	sorted := append([]storedBundle(nil), bundles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].lastUsed.After(sorted[j].lastUsed) })
	for _, b := range sorted {
		expired := p.MaxAge > 0 && now.Sub(b.lastUsed) > p.MaxAge
		overflow := p.MaxBundles > 0 && len(keep) >= p.MaxBundles
		if b.path != active && (expired || overflow) {
			drop = append(drop, b)
			continue
		}
		keep = append(keep, b)
	}
	return keep, drop
}

func (c *Cleaner) scan() ([]storedBundle, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var bundles []storedBundle
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if _, err := ReadManifest(path); err != nil {
			continue
		}
		b, err := measureBundle(path)
		if err != nil {
			c.log.Warn("replay bundle unreadable", logging.String("bundle", entry.Name()), logging.Error(err))
			continue
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

// measureBundle sums file sizes and takes the newest modification time as the
// moment the bundle was last written.
func measureBundle(path string) (storedBundle, error) {
	b := storedBundle{path: path}
	err := filepath.WalkDir(path, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(b.lastUsed) {
			b.lastUsed = info.ModTime()
		}
		if !d.IsDir() {
			b.bytes += info.Size()
			if d.Name() == headerName {
				b.closed = true
			}
		}
		return nil
	})
	return b, err
}
