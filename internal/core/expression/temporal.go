package expression

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// temporalFunctions reduce a window of a stored series. They apply when the
// second argument is a period, e.g. AVERAGE([sat], 1h) or MAX(temp, 1d, 1d)
// where the optional third argument moves the window back from now.
var temporalFunctions = map[string]func(w window) Value{
	"ALL":      func(w window) Value { return BoolValue(w.allTrue()) },
	"ANY":      func(w window) Value { return BoolValue(w.anyTrue()) },
	"AVERAGE":  func(w window) Value { return NumberValue(w.average()) },
	"COUNT":    func(w window) Value { return NumberValue(float64(w.count())) },
	"DELTA":    func(w window) Value { return NumberValue(w.at(w.end) - w.at(w.start)) },
	"FORECAST": func(w window) Value { return w.forecast() },
	"MAX":      func(w window) Value { return NumberValue(w.extreme(math.Max)) },
	"MIN":      func(w window) Value { return NumberValue(w.extreme(math.Min)) },
	"SLOPE":    func(w window) Value { return NumberValue(w.slope()) },
	"STND":     func(w window) Value { return NumberValue(stddev(w.values())) },
}

func historyOf(scope Scope) (History, time.Time) {
	hs, ok := scope.(historyScope)
	if !ok {
		return nil, time.Time{}
	}
	return hs.History()
}

func seriesRef(e Expr) (SeriesRef, bool) {
	switch n := e.(type) {
	case *Point:
		return SeriesRef{Name: n.ID, Point: true}, true
	case *Variable:
		return SeriesRef{Name: n.Name}, true
	}
	return SeriesRef{}, false
}

// evalTemporal handles calls over stored series. It reports false when the
// call is an ordinary function call.
//
// DELTA and DELTA_TIME with a single series argument compare the two newest
// samples; DELTA_TIME is in seconds.
func evalTemporal(name string, args []Expr, scope Scope) (Value, bool) {
	agg, known := temporalFunctions[name]
	windowed := known && len(args) >= 2 && isDuration(args[1])
	lastTwo := (name == "DELTA" || name == "DELTA_TIME") && len(args) == 1
	if !windowed && !lastTwo {
		return Undefined, false
	}
	if f, failed := args[0].(*Failed); failed {
		return FailedValue(f.Reason), true
	}
	ref, ok := seriesRef(args[0])
	if !ok {
		if lastTwo {
			return Undefined, false
		}
		return FailedValue(name + " over a period expects a point or variable"), true
	}
	h, now := historyOf(scope)
	if h == nil {
		return Undefined, true
	}

	if lastTwo {
		s := h.Recent(ref, now, 2)
		if len(s) < 2 {
			return NumberValue(0), true
		}
		if name == "DELTA_TIME" {
			return NumberValue(s[1].Time.Sub(s[0].Time).Seconds()), true
		}
		return NumberValue(s[1].Value - s[0].Value), true
	}

	period := args[1].(*Duration).Duration().Abs()
	end := now
	if len(args) >= 3 {
		if from, ok := args[2].(*Duration); ok {
			end = now.Add(-from.Duration().Abs())
		}
	}
	start := end.Add(-period)

	samples, earliest, ok := h.Window(ref, start, end)
	if !ok || len(samples) == 0 {
		return Undefined, true
	}
	if earliest.After(start) {
		return InsufficientDataValue(fmt.Sprintf("Variable '%s' does not have sufficient data for period %s", ref, period)), true
	}
	return agg(window{start: start, end: end, period: period, samples: samples}), true
}

func isDuration(e Expr) bool {
	_, ok := e.(*Duration)
	return ok
}

// window is [start, end] of a series. samples[0] may precede start when it
// is the value in effect at start.
type window struct {
	start, end time.Time
	period     time.Duration
	samples    []Sample
}

// at interpolates linearly between the samples around t and holds the
// newest value past the last sample.
func (w window) at(t time.Time) float64 {
	s := w.samples
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	switch {
	case i == 0:
		return s[0].Value
	case i == len(s):
		return s[i-1].Value
	}
	a, b := s[i-1], s[i]
	f := float64(t.Sub(a.Time)) / float64(b.Time.Sub(a.Time))
	return a.Value + f*(b.Value-a.Value)
}

// curve is the interpolated series from start to end.
func (w window) curve() []Sample {
	out := []Sample{{Time: w.start, Value: w.at(w.start)}}
	for _, s := range w.samples {
		if s.Time.After(w.start) && s.Time.Before(w.end) {
			out = append(out, s)
		}
	}
	if w.end.After(w.start) {
		out = append(out, Sample{Time: w.end, Value: w.at(w.end)})
	}
	return out
}

// values are the samples in effect at some point of the window.
func (w window) values() []float64 {
	out := make([]float64, len(w.samples))
	for i, s := range w.samples {
		out[i] = s.Value
	}
	return out
}

func (w window) count() int {
	n := 0
	for _, s := range w.samples {
		if !s.Time.Before(w.start) {
			n++
		}
	}
	return n
}

func (w window) allTrue() bool {
	for _, s := range w.samples {
		if s.Value == 0 {
			return false
		}
	}
	return true
}

func (w window) anyTrue() bool {
	for _, s := range w.samples {
		if s.Value != 0 {
			return true
		}
	}
	return false
}

// average is the time weighted mean of the interpolated curve.
func (w window) average() float64 {
	c := w.curve()
	if len(c) == 1 {
		return c[0].Value
	}
	area := 0.0
	for i := 1; i < len(c); i++ {
		area += (c[i-1].Value + c[i].Value) / 2 * c[i].Time.Sub(c[i-1].Time).Seconds()
	}
	return area / w.end.Sub(w.start).Seconds()
}

func (w window) extreme(pick func(a, b float64) float64) float64 {
	c := w.curve()
	v := c[0].Value
	for _, s := range c[1:] {
		v = pick(v, s.Value)
	}
	return v
}

// slope is the least squares slope of the curve per day.
func (w window) slope() float64 {
	m, _, ok := regression(w.curve())
	if !ok {
		return 0
	}
	return m
}

// forecast extrapolates the samples one period past the newest one.
func (w window) forecast() Value {
	s := w.samples
	if len(s) == 1 {
		return NumberValue(s[0].Value)
	}
	m, c, ok := regression(s)
	if !ok {
		return NumberValue(s[len(s)-1].Value)
	}
	x := days(s[len(s)-1].Time.Add(w.period), s[0].Time)
	return NumberValue(m*x + c)
}

// regression fits value = m*days + c with days counted from the first sample.
func regression(s []Sample) (m, c float64, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	var sx, sy float64
	for _, p := range s {
		sx += days(p.Time, s[0].Time)
		sy += p.Value
	}
	n := float64(len(s))
	mx, my := sx/n, sy/n
	var sxy, sxx float64
	for _, p := range s {
		dx := days(p.Time, s[0].Time) - mx
		sxy += dx * (p.Value - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, 0, false
	}
	m = sxy / sxx
	return m, my - m*mx, true
}

func days(t, origin time.Time) float64 {
	return t.Sub(origin).Hours() / 24
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sq := 0.0
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}
