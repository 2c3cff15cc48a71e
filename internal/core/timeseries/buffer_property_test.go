//go:build property
// +build property

package timeseries

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBufferOrdering verifies timestamps stay strictly increasing for any
// arrival order of samples.
func TestBufferOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("buffer is always in order", prop.ForAll(
		func(offsets []int, values []float64, compress bool) bool {
			b := NewBuffer(50, DefaultCompression)
			for i, off := range offsets {
				v := 0.0
				if i < len(values) {
					v = values[i]
				}
				b.AddPoint(Number(t0.Add(time.Duration(off)*time.Second), v), compress)
				if !b.InOrder() {
					return false
				}
			}
			return b.Count() <= 50
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
		gen.SliceOf(gen.Float64Range(-1000, 1000)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestBufferIdempotence verifies re-adding the newest sample never grows the buffer.
func TestBufferIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("re-adding the last sample is a no-op", prop.ForAll(
		func(values []float64) bool {
			b := NewBuffer(0, DefaultCompression)
			for i, v := range values {
				b.AddPoint(Number(t0.Add(time.Duration(i)*time.Minute), v), true)
			}
			last, ok := b.Last()
			if !ok {
				return true
			}
			before := b.Count()
			b.AddPoint(last, true)
			return b.Count() == before
		},
		gen.SliceOf(gen.Float64Range(-50, 50)),
	))

	properties.TestingRun(t)
}
