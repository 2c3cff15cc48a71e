package expression

import "time"

// Scope supplies values for variables and bound points during evaluation.
type Scope interface {
	Variable(name string) (Value, bool)
	Point(id string) (Value, bool)
}

// PointLookup resolves a twin id to its current value.
type PointLookup func(id string) (Value, bool)

// SeriesRef names the stored series a temporal function reads: a bound point
// or a parameter computed earlier in the same trigger.
type SeriesRef struct {
	Name  string
	Point bool
}

func (r SeriesRef) String() string {
	if r.Point {
		return "[" + r.Name + "]"
	}
	return r.Name
}

// Sample is one stored value of a series.
type Sample struct {
	Time  time.Time
	Value float64
}

// History gives the temporal functions access to stored series.
type History interface {
	// Window returns the samples of ref in [start, end], preceded by the one
	// in effect at start, and the time of the oldest retained sample.
	Window(ref SeriesRef, start, end time.Time) (samples []Sample, earliest time.Time, ok bool)
	// Recent returns up to n samples of ref at or before t, oldest first.
	Recent(ref SeriesRef, t time.Time, n int) []Sample
	// Timely reports whether a point reports regularly enough at t.
	Timely(id string, t time.Time) bool
}

// historyScope is implemented by scopes that carry stored series.
type historyScope interface {
	History() (History, time.Time)
}

// Env is a stack of variable frames over a point lookup. Inner frames shadow
// outer ones.
type Env struct {
	frames  []map[string]Value
	points  PointLookup
	history History
	now     time.Time
}

// NewEnv returns an environment with a single empty frame.
func NewEnv(points PointLookup) *Env {
	return &Env{frames: []map[string]Value{{}}, points: points}
}

// WithHistory attaches stored series read as of now.
func (e *Env) WithHistory(h History, now time.Time) *Env {
	e.history, e.now = h, now
	return e
}

// History returns the attached series, nil when there are none.
func (e *Env) History() (History, time.Time) {
	return e.history, e.now
}

// Push opens a new frame.
func (e *Env) Push() {
	e.frames = append(e.frames, map[string]Value{})
}

// Pop discards the innermost frame. The root frame is never removed.
func (e *Env) Pop() {
	if len(e.frames) > 1 {
		e.frames = e.frames[:len(e.frames)-1]
	}
}

// Assign sets name in the innermost frame.
func (e *Env) Assign(name string, v Value) {
	e.frames[len(e.frames)-1][name] = v
}

func (e *Env) Variable(name string) (Value, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if v, ok := e.frames[i][name]; ok {
			return v, true
		}
	}
	return Undefined, false
}

func (e *Env) Point(id string) (Value, bool) {
	if e.points == nil {
		return Undefined, false
	}
	return e.points(id)
}
