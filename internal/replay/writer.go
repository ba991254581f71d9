package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

const (
	// ManifestVersion is bumped whenever the bundle layout changes.
	ManifestVersion = 1

	manifestName = "manifest.json"
	headerName   = "header.json"
	eventsName   = "events.jsonl.sz"
	framesName   = "frames.bin.zst"

	frameInterval = 200 * time.Millisecond
	// frameHeaderSize covers tick, simulated ms, capture time and payload length.
	frameHeaderSize = 8 + 8 + 8 + 4
)

// ErrWriterClosed is returned by appends after Close.
var ErrWriterClosed = errors.New("replay writer closed")

var unsafeSessionChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest sits at the root of every bundle. Its presence is what marks a
// directory as a bundle.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// eventRecord is one line of the event log.
type eventRecord struct {
	Tick        uint64          `json:"tick"`
	SimulatedMs int64           `json:"simulated_ms"`
	CapturedAt  string          `json:"captured_at"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// eventLog appends JSON lines to a snappy framed stream, flushing after each
// line so a crash loses at most the line in flight.
type eventLog struct {
	file   *os.File
	stream *snappy.Writer
	byType map[string]int
}

func createEventLog(path string) (*eventLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	return &eventLog{file: file, stream: snappy.NewBufferedWriter(file), byType: make(map[string]int)}, nil
}

func (l *eventLog) append(rec eventRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := l.stream.Write(append(line, '\n')); err != nil {
		return err
	}
	l.byType[rec.Type]++
	return l.stream.Flush()
}

func (l *eventLog) close() error {
	return errors.Join(l.stream.Close(), l.file.Close())
}

type frameBlob struct {
	tick        uint64
	simulatedMs int64
	capturedAt  time.Time
	payload     []byte
}

// frameLog batches encoded frames and writes each one to a zstd stream as a
// little-endian header followed by the payload.
type frameLog struct {
	file      *os.File
	stream    *zstd.Encoder
	pending   []frameBlob
	lastDrain time.Time
}

func createFrameLog(path string) (*frameLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create frame log: %w", err)
	}
	stream, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &frameLog{file: file, stream: stream}, nil
}

// stage queues blob and drains the queue once frameInterval of wall time has
// passed since the previous drain.
func (l *frameLog) stage(blob frameBlob) error {
	l.pending = append(l.pending, blob)
	if l.lastDrain.IsZero() {
		l.lastDrain = blob.capturedAt
		return nil
	}
	if blob.capturedAt.Sub(l.lastDrain) < frameInterval {
		return nil
	}
	l.lastDrain = blob.capturedAt
	return l.drain()
}

func (l *frameLog) drain() error {
	var header [frameHeaderSize]byte
	for i, blob := range l.pending {
		putFrameHeader(header[:], blob.tick, blob.simulatedMs, blob.capturedAt.UnixNano(), len(blob.payload))
		if _, err := l.stream.Write(header[:]); err != nil {
			l.pending = l.pending[i:]
			return err
		}
		if _, err := l.stream.Write(blob.payload); err != nil {
			l.pending = l.pending[i+1:]
			return err
		}
	}
	l.pending = l.pending[:0]
	return nil
}

func (l *frameLog) close() error {
	return errors.Join(l.drain(), l.stream.Close(), l.file.Close())
}

func putFrameHeader(dst []byte, tick uint64, simulatedMs, capturedNs int64, size int) {
	binary.LittleEndian.PutUint64(dst[0:8], tick)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(simulatedMs))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(capturedNs))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(size))
}

func parseFrameHeader(src []byte) (tick uint64, simulatedMs, capturedNs int64, size int) {
	return binary.LittleEndian.Uint64(src[0:8]),
		int64(binary.LittleEndian.Uint64(src[8:16])),
		int64(binary.LittleEndian.Uint64(src[16:24])),
		int(binary.LittleEndian.Uint32(src[24:28]))
}

// writeJSONFile replaces path atomically so readers never see half a document.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(append(data, '\n'))
	if err := errors.Join(werr, tmp.Close()); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type tickSpan struct {
	first, last uint64
	seen        bool
}

func (s *tickSpan) include(tick uint64) {
	if !s.seen || tick < s.first {
		s.first = tick
	}
	if !s.seen || tick > s.last {
		s.last = tick
	}
	s.seen = true
}

// Writer streams one replay bundle: the manifest up front, the event and frame
// logs as the run goes, and header.json on Close.
type Writer struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	events *eventLog
	frames *frameLog
	closed bool
	seed   uint64
	scene  SceneParameters
	span   tickSpan
	frameN int
	eventN int
}

// NewWriter creates <root>/<session>-<UTC timestamp>/ and opens both logs.
// Characters outside [A-Za-z0-9_-] are stripped from the session id.
func NewWriter(root, sessionID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, errors.New("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	session := unsafeSessionChars.ReplaceAllString(sessionID, "")
	if session == "" {
		session = "raygrid"
	}
	created := clock().UTC()
	dir := filepath.Join(root, session+"-"+created.Format("20060102T150405.000Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, fmt.Errorf("create bundle: %w", err)
	}

	manifest := Manifest{
		Version:         ManifestVersion,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      eventsName,
		FramesPath:      framesName,
	}
	if err := writeJSONFile(filepath.Join(dir, manifestName), manifest); err != nil {
		return nil, Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	events, err := createEventLog(filepath.Join(dir, eventsName))
	if err != nil {
		return nil, Manifest{}, err
	}
	frames, err := createFrameLog(filepath.Join(dir, framesName))
	if err != nil {
		events.close()
		return nil, Manifest{}, err
	}
	return &Writer{dir: dir, now: clock, events: events, frames: frames}, manifest, nil
}

// Directory is the bundle path.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendEvent writes one line to the event log. A nil payload is omitted.
func (w *Writer) AppendEvent(tick uint64, simulatedMs int64, eventType string, payload json.RawMessage) error {
	if w == nil {
		return ErrWriterClosed
	}
	captured := w.now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	err := w.events.append(eventRecord{
		Tick:        tick,
		SimulatedMs: simulatedMs,
		CapturedAt:  captured.Format(time.RFC3339Nano),
		Type:        eventType,
		Payload:     payload,
	})
	if err != nil {
		return err
	}
	w.eventN++
	w.span.include(tick)
	return nil
}

// AppendFrame stages an encoded frame. Frames reach disk in batches every
// frameInterval of wall time, on Flush, or on Close.
func (w *Writer) AppendFrame(tick uint64, simulatedMs int64, payload []byte) error {
	if w == nil {
		return ErrWriterClosed
	}
	blob := frameBlob{tick: tick, simulatedMs: simulatedMs, capturedAt: w.now().UTC(), payload: append([]byte(nil), payload...)}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.frameN++
	w.span.include(tick)
	return w.frames.stage(blob)
}

// SetHeaderMetadata records the seed and scene written to header.json on Close.
func (w *Writer) SetHeaderMetadata(seed uint64, scene SceneParameters) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.seed, w.scene = seed, scene
	w.mu.Unlock()
}

// Counts reports how many events and frames were appended.
func (w *Writer) Counts() (events, frames int) {
	if w == nil {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eventN, w.frameN
}

// Flush pushes staged frames through the zstd encoder to the file.
func (w *Writer) Flush() error {
	if w == nil {
		return ErrWriterClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.frames.drain(); err != nil {
		return err
	}
	w.frames.lastDrain = w.now().UTC()
	return w.frames.stream.Flush()
}

// Close writes the header and closes both logs. A second Close is a no-op.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	counts := make(map[string]int, len(w.events.byType))
	for kind, n := range w.events.byType {
		counts[kind] = n
	}
	//1.- The header goes first so a bundle with a broken stream is still catalogued.
	headerErr := WriteHeader(filepath.Join(w.dir, headerName), Header{
		SchemaVersion: HeaderSchemaVersion,
		Seed:          w.seed,
		Scene:         w.scene,
		FirstTick:     w.span.first,
		LastTick:      w.span.last,
		Frames:        w.frameN,
		EventCounts:   counts,
		ClosedAt:      w.now().UTC().Format(time.RFC3339Nano),
		FilePointer:   manifestName,
	})
	return errors.Join(headerErr, w.events.close(), w.frames.close())
}
