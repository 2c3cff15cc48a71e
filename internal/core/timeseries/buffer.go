package timeseries

import (
	"sort"
	"time"
)

// DefaultMaxCount bounds a buffer when no explicit limit is configured.
const DefaultMaxCount = 2500

// Buffer is a time ordered window of samples for one variable.
//
// Timestamps are strictly increasing after every AddPoint. A sample older than
// the newest stored one truncates the buffer back to that time and is then
// inserted, so a replay can rebuild the tail.
type Buffer struct {
	Points      []TimedValue  `json:"points"`
	LastGap     time.Duration `json:"lastGap"`
	MaxCount    int           `json:"maxCount,omitempty"`
	Compression float64       `json:"compression,omitempty"`

	state compressorState
}

// NewBuffer returns a buffer that keeps at most maxCount points (0 = unbounded)
// and applies trajectory compression with the given relative deviation
// (0 = step compression only).
func NewBuffer(maxCount int, compression float64) *Buffer {
	return &Buffer{MaxCount: maxCount, Compression: compression}
}

// AddPoint appends v. It returns false when v was rejected or folded into the
// last stored point.
//
// With applyCompression a sample equal to the last stored value only extends
// the implicit end of that point. Numeric samples additionally go through the
// trajectory compressor when the buffer has a compression deviation.
func (b *Buffer) AddPoint(v TimedValue, applyCompression bool) bool {
	if !v.Valid() {
		return false
	}

	if n := len(b.Points); n > 0 && v.Timestamp.Before(b.Points[n-1].Timestamp) {
		b.RemovePointsAfter(v.Timestamp)
	}

	n := len(b.Points)
	if n > 0 {
		last := b.Points[n-1]
		if v.Timestamp.Equal(last.Timestamp) {
			return false
		}
		if applyCompression && last.SameValue(v) {
			return false
		}
		b.LastGap = v.Timestamp.Sub(last.Timestamp)
	}

	if applyCompression && b.Compression > 0 && n >= 2 && v.IsNumeric() &&
		b.Points[n-1].IsNumeric() && b.Points[n-2].IsNumeric() {
		c := trajectoryCompressor{deviation: b.Compression}
		if c.absorb(&b.state, b.Points[n-2], b.Points[n-1], v) {
			b.Points[n-1] = v
			return true
		}
	}

	b.Points = append(b.Points, v)
	b.trim()
	return true
}

func (b *Buffer) trim() {
	if b.MaxCount > 0 && len(b.Points) > b.MaxCount {
		drop := len(b.Points) - b.MaxCount
		b.Points = append(b.Points[:0:0], b.Points[drop:]...)
		b.state = compressorState{}
	}
}

// Count returns the number of stored points.
func (b *Buffer) Count() int {
	return len(b.Points)
}

// First returns the oldest point.
func (b *Buffer) First() (TimedValue, bool) {
	if len(b.Points) == 0 {
		return TimedValue{}, false
	}
	return b.Points[0], true
}

// Last returns the newest point.
func (b *Buffer) Last() (TimedValue, bool) {
	if len(b.Points) == 0 {
		return TimedValue{}, false
	}
	return b.Points[len(b.Points)-1], true
}

// LastAndPrevious returns the two newest points.
func (b *Buffer) LastAndPrevious() (last, previous TimedValue, ok bool) {
	n := len(b.Points)
	if n < 2 {
		return TimedValue{}, TimedValue{}, false
	}
	return b.Points[n-1], b.Points[n-2], true
}

// LastDelta is the value change between the two newest points.
func (b *Buffer) LastDelta() float64 {
	last, previous, ok := b.LastAndPrevious()
	if !ok {
		return 0
	}
	return last.Value - previous.Value
}

// ValueAt returns the point in effect at t, the newest one at or before t.
func (b *Buffer) ValueAt(t time.Time) (TimedValue, bool) {
	i := sort.Search(len(b.Points), func(i int) bool {
		return b.Points[i].Timestamp.After(t)
	})
	if i == 0 {
		return TimedValue{}, false
	}
	return b.Points[i-1], true
}

// GetRange returns the points with start <= timestamp <= end.
func (b *Buffer) GetRange(start, end time.Time) []TimedValue {
	lo := sort.Search(len(b.Points), func(i int) bool {
		return !b.Points[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(b.Points), func(i int) bool {
		return b.Points[i].Timestamp.After(end)
	})
	if lo >= hi {
		return nil
	}
	out := make([]TimedValue, hi-lo)
	copy(out, b.Points[lo:hi])
	return out
}

// Window returns the points in [start, end] preceded by the point in effect
// at start, and the timestamp of the oldest stored point.
func (b *Buffer) Window(start, end time.Time) ([]TimedValue, time.Time) {
	if len(b.Points) == 0 {
		return nil, time.Time{}
	}
	lo := sort.Search(len(b.Points), func(i int) bool {
		return b.Points[i].Timestamp.After(start)
	})
	if lo > 0 {
		lo--
	}
	hi := sort.Search(len(b.Points), func(i int) bool {
		return b.Points[i].Timestamp.After(end)
	})
	var out []TimedValue
	if lo < hi {
		out = make([]TimedValue, hi-lo)
		copy(out, b.Points[lo:hi])
	}
	return out, b.Points[0].Timestamp
}

// Recent returns up to n points at or before t, oldest first.
func (b *Buffer) Recent(t time.Time, n int) []TimedValue {
	hi := sort.Search(len(b.Points), func(i int) bool {
		return b.Points[i].Timestamp.After(t)
	})
	lo := max(hi-n, 0)
	out := make([]TimedValue, hi-lo)
	copy(out, b.Points[lo:hi])
	return out
}

// RemovePointsAfter drops every point newer than t and resets compression.
func (b *Buffer) RemovePointsAfter(t time.Time) {
	i := sort.Search(len(b.Points), func(i int) bool {
		return b.Points[i].Timestamp.After(t)
	})
	if i < len(b.Points) {
		b.Points = b.Points[:i]
		b.state = compressorState{}
	}
}

// ApplyLimits drops points older than now-maxAge, keeping the one point that
// is still in effect at the cutoff and never fewer than two points. maxCount
// is applied after the age limit when positive.
func (b *Buffer) ApplyLimits(now time.Time, maxAge time.Duration, maxCount int) {
	n := len(b.Points)
	if n <= 2 {
		return
	}

	start := 0
	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		i := sort.Search(n, func(i int) bool {
			return !b.Points[i].Timestamp.Before(cutoff)
		})
		start = i - 1
		if start < 0 {
			start = 0
		}
	}
	if maxCount > 0 && n-start > maxCount {
		start = n - maxCount
	}
	if start > n-2 {
		start = n - 2
	}
	if start <= 0 {
		return
	}

	b.Points = append(b.Points[:0:0], b.Points[start:]...)
	b.state = compressorState{}
}

// InOrder reports whether timestamps are strictly increasing.
func (b *Buffer) InOrder() bool {
	for i := 1; i < len(b.Points); i++ {
		if !b.Points[i].Timestamp.After(b.Points[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.Points = append([]TimedValue(nil), b.Points...)
	return &c
}
