package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion is bumped whenever Header changes shape.
const HeaderSchemaVersion = 1

// SceneParameters records what is needed to interpret a bundle: the grid, the
// obstacle count and the ray's kinematics.
type SceneParameters struct {
	CellCount int     `json:"cell_count"`
	CellSize  float64 `json:"cell_size"`
	HalfSize  float64 `json:"half_size"`
	Obstacles int     `json:"obstacles"`
	Speed     float64 `json:"speed"`
	TickHz    float64 `json:"tick_hz"`
	ScenePath string  `json:"scene_path,omitempty"`
}

// Header is written next to the manifest when a bundle closes. A bundle
// without one was interrupted.
type Header struct {
	SchemaVersion int             `json:"schema_version"`
	Seed          uint64          `json:"seed"`
	Scene         SceneParameters `json:"scene"`
	FirstTick     uint64          `json:"first_tick"`
	LastTick      uint64          `json:"last_tick"`
	Frames        int             `json:"frames"`
	// EventCounts tallies event log lines by type, so catalogs can report hits
	// and exits without decoding the log.
	EventCounts map[string]int `json:"event_counts,omitempty"`
	ClosedAt    string         `json:"closed_at,omitempty"`
	FilePointer string         `json:"file_pointer"`
}

// Validate reports every problem at once.
func (h Header) Validate() error {
	var problems []string
	if h.SchemaVersion <= 0 {
		problems = append(problems, "schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		problems = append(problems, "file_pointer must not be empty")
	}
	if h.LastTick < h.FirstTick {
		problems = append(problems, fmt.Sprintf("last_tick %d precedes first_tick %d", h.LastTick, h.FirstTick))
	}
	if h.Frames < 0 {
		problems = append(problems, "frames must not be negative")
	}
	for kind, n := range h.EventCounts {
		if n < 0 {
			problems = append(problems, fmt.Sprintf("event count for %q is negative", kind))
		}
	}
	if h.Scene.TickHz < 0 || h.Scene.Speed < 0 {
		problems = append(problems, "scene tick_hz and speed must not be negative")
	}
	if len(problems) > 0 {
		return errors.New("invalid replay header: " + strings.Join(problems, "; "))
	}
	return nil
}

// WriteHeader validates header and replaces path with it atomically.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSONFile(path, header)
}

// ReadHeader loads and validates a header.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("decode header %s: %w", path, err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}
