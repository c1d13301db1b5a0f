package buffer

import (
	"log/slog"
	"sync"
)

type clockFrame struct {
	inReplacer bool
	reference  bool
}

// ClockReplacer approximates LRU with a second-chance sweep. Every frame the
// pool owns has a fixed position on the clock; only Victim moves the hand.
type ClockReplacer struct {
	mu     sync.Mutex
	frames []clockFrame
	hand   int
	size   int
	logger *slog.Logger
}

func NewClockReplacer(numFrames int) *ClockReplacer {
	return &ClockReplacer{
		frames: make([]clockFrame, numFrames),
		logger: slog.Default(),
	}
}

// Victim sweeps from the hand: a set reference bit is cleared and skipped, the
// first present frame with a clear bit is removed and returned. Two full turns
// are always enough, so the sweep is bounded by 2*len(frames).
func (c *ClockReplacer) Victim() (FrameID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size == 0 {
		return -1, false
	}
	n := len(c.frames)
	for i := 0; i < 2*n; i++ {
		f := &c.frames[c.hand]
		cur := c.hand
		c.hand = (c.hand + 1) % n
		if !f.inReplacer {
			continue
		}
		if f.reference {
			f.reference = false
			continue
		}
		f.inReplacer = false
		c.size--
		return FrameID(cur), true
	}
	return -1, false
}

// Pin takes frameID out of the replacer.
func (c *ClockReplacer) Pin(frameID FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid(frameID) {
		return
	}
	f := &c.frames[frameID]
	if !f.inReplacer {
		c.logger.Warn("clock replacer: pin of frame not in replacer", "frame", int(frameID))
		return
	}
	f.inReplacer = false
	f.reference = false
	c.size--
}

// Unpin makes frameID evictable with its reference bit set.
func (c *ClockReplacer) Unpin(frameID FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid(frameID) {
		return
	}
	f := &c.frames[frameID]
	if f.inReplacer {
		c.logger.Warn("clock replacer: frame unpinned twice", "frame", int(frameID))
		f.reference = true
		return
	}
	f.inReplacer = true
	f.reference = true
	c.size++
}

func (c *ClockReplacer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *ClockReplacer) valid(frameID FrameID) bool {
	if frameID < 0 || int(frameID) >= len(c.frames) {
		c.logger.Warn("clock replacer: frame out of range", "frame", int(frameID), "frames", len(c.frames))
		return false
	}
	return true
}

func (c *ClockReplacer) setLogger(l *slog.Logger) { c.logger = l }
