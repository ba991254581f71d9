package camera

import "sync"

// Keys is the set of arrow keys held during a tick.
type Keys struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
}

// Deltas converts held keys into orbit deltas. Right increases azimuth, Left
// decreases it; Up lowers polar, Down raises it. Opposing keys cancel.
func (k Keys) Deltas(speed float64) (dAzimuth, dPolar float64) {
	if k.Right {
		dAzimuth += speed
	}
	if k.Left {
		dAzimuth -= speed
	}
	if k.Up {
		dPolar -= speed
	}
	if k.Down {
		dPolar += speed
	}
	return dAzimuth, dPolar
}

// Input is the hand-off point between network readers and the simulation
// goroutine. Writers replace the latched keys; the tick polls them.
type Input struct {
	mu   sync.Mutex
	keys Keys
	seq  uint64
}

// NewInput returns a latch with no keys held.
func NewInput() *Input {
	return &Input{}
}

// Set replaces the held keys.
func (i *Input) Set(keys Keys) {
	i.mu.Lock()
	i.keys = keys
	i.seq++
	i.mu.Unlock()
}

// Release clears every held key, for example when the client that set them leaves.
func (i *Input) Release() {
	i.Set(Keys{})
}

// Poll returns the currently held keys and how many updates have been latched.
func (i *Input) Poll() (Keys, uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keys, i.seq
}
