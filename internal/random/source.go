// Package random supplies the uniform integer draws used when the ray resets.
package random

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// Source produces uniformly distributed integers in the half-open range [lo, hi).
type Source interface {
	IntRange(lo, hi int) int
}

// ProcessSource wraps a single seeded generator shared by the whole process.
// It is seeded once at construction and never reseeded.
type ProcessSource struct {
	mu   sync.Mutex
	seed uint64
	rng  *rand.Rand
}

// NewProcessSource seeds a generator. A zero seed derives one from the wall clock;
// Seed reports the value actually used so runs can be reproduced.
func NewProcessSource(seed int64) *ProcessSource {
	effective := uint64(seed)
	if seed == 0 {
		effective = uint64(time.Now().UnixNano())
	}
	return &ProcessSource{seed: effective, rng: rand.New(rand.NewSource(effective))}
}

// Seed returns the seed the generator was created with.
func (s *ProcessSource) Seed() uint64 {
	if s == nil {
		return 0
	}
	return s.seed
}

// IntRange draws from [lo, hi). It panics when the range is empty.
func (s *ProcessSource) IntRange(lo, hi int) int {
	checkRange(lo, hi)
	s.mu.Lock()
	n := s.rng.Intn(hi - lo)
	s.mu.Unlock()
	return lo + n
}

// Sequence replays a fixed list of values, wrapping each into [lo, hi) and
// cycling when exhausted. Tests use it to script reset directions.
type Sequence struct {
	values []int
	next   int
}

// NewSequence copies values into a deterministic source.
func NewSequence(values ...int) *Sequence {
	return &Sequence{values: append([]int(nil), values...)}
}

// IntRange returns the next scripted value reduced into [lo, hi).
func (s *Sequence) IntRange(lo, hi int) int {
	checkRange(lo, hi)
	if len(s.values) == 0 {
		return lo
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	span := hi - lo
	offset := (v - lo) % span
	if offset < 0 {
		offset += span
	}
	return lo + offset
}

// Draws reports how many values have been consumed.
func (s *Sequence) Draws() int { return s.next }

func checkRange(lo, hi int) {
	if hi <= lo {
		panic(fmt.Sprintf("random: empty range [%d, %d)", lo, hi))
	}
}
