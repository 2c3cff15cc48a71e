package timeseries

import (
	"math"
	"time"
)

// DefaultCompression is the relative deviation used by the trajectory
// compressor when none is configured.
const DefaultCompression = 0.05

// compressorState is the swinging door envelope for the segment that starts
// at the second to last point of a buffer. It is not persisted; a reloaded
// buffer starts a fresh envelope.
type compressorState struct {
	open  bool
	upper float64 // minimum upper slope seen so far
	lower float64 // maximum lower slope seen so far
}

// trajectoryCompressor decides whether the last point of a numeric buffer can be
// replaced by a newer one without moving the line through the kept points
// more than the allowed deviation.
type trajectoryCompressor struct {
	deviation float64 // relative to the magnitude of each point, floor of 1 unit
}

func (c trajectoryCompressor) dev(value float64) float64 {
	return c.deviation * math.Max(math.Abs(value), 1)
}

// absorb reports whether next can replace candidate. anchor is the last
// committed point before candidate. The envelope in st is updated either way.
func (c trajectoryCompressor) absorb(st *compressorState, anchor, candidate, next TimedValue) bool {
	if !st.open {
		c.reset(st, anchor, candidate)
	}

	s := slope(anchor, next.Timestamp, next.Value)
	if s >= st.lower && s <= st.upper {
		d := c.dev(next.Value)
		st.upper = math.Min(st.upper, slope(anchor, next.Timestamp, next.Value+d))
		st.lower = math.Max(st.lower, slope(anchor, next.Timestamp, next.Value-d))
		return true
	}

	// candidate is committed, next opens a new segment
	c.reset(st, candidate, next)
	return false
}

func (c trajectoryCompressor) reset(st *compressorState, from, to TimedValue) {
	d := c.dev(to.Value)
	st.open = true
	st.upper = slope(from, to.Timestamp, to.Value+d)
	st.lower = slope(from, to.Timestamp, to.Value-d)
}

func slope(from TimedValue, t time.Time, v float64) float64 {
	dt := t.Sub(from.Timestamp).Seconds()
	if dt <= 0 {
		return math.Inf(1)
	}
	return (v - from.Value) / dt
}
