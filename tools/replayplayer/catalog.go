package replayplayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"raygrid/internal/replay"
)

// Entry is one bundle found under a replay root. Closed is false for bundles
// whose writer never finished; their Header is zero.
type Entry struct {
	Dir          string          `json:"dir"`
	ManifestPath string          `json:"manifest_path"`
	Manifest     replay.Manifest `json:"manifest"`
	Closed       bool            `json:"closed"`
	Header       replay.Header   `json:"header"`
	Hits         int             `json:"obstacle_hits"`
	Exits        int             `json:"boundary_exits"`
}

// List finds every bundle under root, however deeply nested. Closed bundles
// come first ordered by seed then first tick; interrupted ones follow by path.
func List(root string) ([]Entry, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if info, err := os.Stat(root); err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != "manifest.json" {
			return err
		}
		dir := filepath.Dir(path)
		manifest, err := replay.ReadManifest(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		entry := Entry{Dir: dir, ManifestPath: path, Manifest: manifest}
		header, err := replay.ReadHeader(filepath.Join(dir, "header.json"))
		switch {
		case err == nil:
			entry.Closed, entry.Header = true, header
			entry.Hits = header.EventCounts["hit_obstacle"]
			entry.Exits = header.EventCounts["hit_boundary"]
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.Closed != b.Closed:
			return a.Closed
		case a.Header.Seed != b.Header.Seed:
			return a.Header.Seed < b.Header.Seed
		case a.Header.FirstTick != b.Header.FirstTick:
			return a.Header.FirstTick < b.Header.FirstTick
		}
		return a.Dir < b.Dir
	})
	return entries, nil
}

// MarshalIndent renders v for CLI output.
func MarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
