package actor

import (
	"time"
)

// MaxTextLength caps output text. Longer text is cut and suffixed with "...".
const MaxTextLength = 500

// Output is what a template decided for one trigger.
type Output struct {
	IsValid bool
	Faulted bool
	Text    string
}

func ValidOutput(text string) Output   { return newOutput(true, false, text) }
func FaultedOutput(text string) Output { return newOutput(true, true, text) }

// MissingValue reports that a bound input has no recent data.
func MissingValue(text string) Output { return newOutput(false, false, text) }

// InvalidValue reports an input whose value cannot be used.
func InvalidValue(text string) Output { return newOutput(false, false, text) }

// InsufficientData reports that not enough history exists to decide.
func InsufficientData(text string) Output { return newOutput(false, false, text) }

// InvalidOutput reports a result that is not of the expected type.
func InvalidOutput(text string) Output { return newOutput(false, false, text) }

func newOutput(valid, faulted bool, text string) Output {
	return Output{IsValid: valid, Faulted: faulted, Text: Truncate(text)}
}

// Truncate shortens text to MaxTextLength runes.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxTextLength {
		return text
	}
	return string(r[:MaxTextLength]) + "..."
}

// OutputValue is one interval [StartTime, EndTime) during which the output
// kept the same validity and fault state. The newest interval is open and
// its EndTime is the latest trigger time.
type OutputValue struct {
	StartTime    time.Time `json:"start"`
	EndTime      time.Time `json:"end"`
	IsValid      bool      `json:"is_valid"`
	Faulted      bool      `json:"faulted"`
	Text         string    `json:"text"`
	TriggerCount int       `json:"trigger_count"`
}

func (v OutputValue) sameState(o Output) bool {
	return v.IsValid == o.IsValid && v.Faulted == o.Faulted
}

// Duration is the length of the interval.
func (v OutputValue) Duration() time.Duration {
	return v.EndTime.Sub(v.StartTime)
}

// OutputValues is the ordered list of output intervals of an actor.
type OutputValues struct {
	Points []OutputValue `json:"points"`
}

// Add records out at time t. An unchanged state extends the open interval;
// a change closes it at t and opens a new one. It returns true when a new
// interval was opened. Triggers older than the open interval are ignored.
func (o *OutputValues) Add(t time.Time, out Output) bool {
	n := len(o.Points)
	if n == 0 {
		o.open(t, out)
		return true
	}

	last := &o.Points[n-1]
	if t.Before(last.EndTime) {
		return false
	}

	if last.sameState(out) {
		if t.After(last.EndTime) {
			last.TriggerCount++
		}
		last.EndTime = t
		last.Text = out.Text
		return false
	}

	// state changed at the instant the open interval started: rewrite it
	if last.StartTime.Equal(t) {
		if n > 1 && o.Points[n-2].sameState(out) && o.Points[n-2].EndTime.Equal(t) {
			o.Points = o.Points[:n-1]
			o.Points[n-2].Text = out.Text
			return false
		}
		last.IsValid, last.Faulted, last.Text = out.IsValid, out.Faulted, out.Text
		return false
	}

	last.EndTime = t
	o.open(t, out)
	return true
}

func (o *OutputValues) open(t time.Time, out Output) {
	o.Points = append(o.Points, OutputValue{
		StartTime:    t,
		EndTime:      t,
		IsValid:      out.IsValid,
		Faulted:      out.Faulted,
		Text:         out.Text,
		TriggerCount: 1,
	})
}

// Extend moves the end of the open interval to t without counting a trigger.
func (o *OutputValues) Extend(t time.Time) {
	if n := len(o.Points); n > 0 && t.After(o.Points[n-1].EndTime) {
		o.Points[n-1].EndTime = t
	}
}

// Last returns the open interval.
func (o *OutputValues) Last() (OutputValue, bool) {
	if len(o.Points) == 0 {
		return OutputValue{}, false
	}
	return o.Points[len(o.Points)-1], true
}

// Count is the number of intervals.
func (o *OutputValues) Count() int { return len(o.Points) }

// Filter returns the intervals that overlap [start, end]. A zero start or
// end leaves that side unbounded.
func (o *OutputValues) Filter(start, end time.Time) []OutputValue {
	var out []OutputValue
	for _, p := range o.Points {
		if !start.IsZero() && p.EndTime.Before(start) {
			continue
		}
		if !end.IsZero() && p.StartTime.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// HasOverlapping reports whether any two intervals overlap or run backwards.
func (o *OutputValues) HasOverlapping() bool {
	for i, p := range o.Points {
		if p.EndTime.Before(p.StartTime) {
			return true
		}
		if i > 0 && p.StartTime.Before(o.Points[i-1].EndTime) {
			return true
		}
	}
	return false
}

// RemoveValuesAfter drops intervals starting after t and cuts the one
// spanning t.
func (o *OutputValues) RemoveValuesAfter(t time.Time) {
	kept := o.Points[:0]
	for _, p := range o.Points {
		if p.StartTime.After(t) {
			continue
		}
		if p.EndTime.After(t) {
			p.EndTime = t
		}
		kept = append(kept, p)
	}
	o.Points = kept
}

// ApplyLimits drops intervals that ended before now-maxAge and keeps at most
// maxCount intervals. The open interval is always kept.
func (o *OutputValues) ApplyLimits(now time.Time, maxAge time.Duration, maxCount int) {
	n := len(o.Points)
	if n <= 1 {
		return
	}
	start := 0
	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		for start < n-1 && o.Points[start].EndTime.Before(cutoff) {
			start++
		}
	}
	if maxCount > 0 && n-start > maxCount {
		start = n - maxCount
	}
	if start > 0 {
		o.Points = append(o.Points[:0:0], o.Points[start:]...)
	}
}

func (o OutputValues) clone() OutputValues {
	return OutputValues{Points: append([]OutputValue(nil), o.Points...)}
}
