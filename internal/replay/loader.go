package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"raygrid/internal/frame"
)

// Event is one decoded line of the event log.
type Event struct {
	Tick        uint64
	SimulatedMs int64
	CapturedAt  time.Time
	Type        string
	Payload     json.RawMessage
}

// FrameRecord is one decoded frame with its storage metadata.
type FrameRecord struct {
	Tick        uint64
	SimulatedMs int64
	CapturedAt  time.Time
	Frame       frame.Frame
}

// Bundle is a fully decoded replay directory.
type Bundle struct {
	Dir      string
	Manifest Manifest
	Header   Header
	// HasHeader is false for bundles whose writer never closed.
	HasHeader bool
	Events    []Event
	Frames    []FrameRecord
}

// Load reads the bundle at path, which may be the bundle directory or its
// manifest.json.
func Load(path string) (*Bundle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	//1.- The manifest names the remaining artefacts.
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Dir: dir, Manifest: manifest}

	//2.- A missing header means the writer was interrupted; the streams are still usable.
	header, err := ReadHeader(filepath.Join(dir, headerName))
	switch {
	case err == nil:
		bundle.Header = header
		bundle.HasHeader = true
	case !os.IsNotExist(err):
		return nil, err
	}

	if bundle.Events, err = loadEvents(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	if bundle.Frames, err = loadFrames(filepath.Join(dir, manifest.FramesPath)); err != nil {
		return nil, fmt.Errorf("frames: %w", err)
	}
	return bundle, nil
}

// ReadManifest loads and checks the manifest inside dir.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	return manifest, nil
}

func loadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var events []Event
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw eventRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, err
		}
		captured, err := time.Parse(time.RFC3339Nano, raw.CapturedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, Event{
			Tick:        raw.Tick,
			SimulatedMs: raw.SimulatedMs,
			CapturedAt:  captured,
			Type:        raw.Type,
			Payload:     raw.Payload,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func loadFrames(path string) ([]FrameRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var (
		records []FrameRecord
		header  [frameHeaderSize]byte
		payload []byte
	)
	for {
		//1.- A clean EOF may only fall between records.
		if _, err := io.ReadFull(decoder, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("truncated frame header after %d frames: %w", len(records), err)
		}
		tick, simulated, captured, size := parseFrameHeader(header[:])
		if cap(payload) < size {
			payload = make([]byte, size)
		}
		payload = payload[:size]
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, fmt.Errorf("truncated frame payload for tick %d: %w", tick, err)
		}
		record := FrameRecord{Tick: tick, SimulatedMs: simulated, CapturedAt: time.Unix(0, captured).UTC()}
		if err := record.Frame.UnmarshalBinary(payload); err != nil {
			return nil, fmt.Errorf("tick %d: %w", tick, err)
		}
		records = append(records, record)
	}
}
