package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
)

// rollup splits [start, end) into step sized windows aligned to UTC and
// summarizes the intervals overlapping each one.
func rollup(values []actor.OutputValue, start, end time.Time, step time.Duration) []FaultBucket {
	var results []FaultBucket
	current := truncate(start, step)
	for current.Before(end) {
		next := current.Add(step)
		results = append(results, summarizeWindow(values, current, next))
		current = next
	}
	return results
}

// summarizeWindow clips every interval to [start, end) and adds up the
// valid and faulted time. Faults counts faulted intervals starting inside
// the window.
func summarizeWindow(values []actor.OutputValue, start, end time.Time) FaultBucket {
	b := FaultBucket{
		WindowStart:    start,
		WindowEnd:      end,
		FaultedSeconds: decimal.Zero,
		ValidSeconds:   decimal.Zero,
		FaultedRatio:   decimal.Zero,
	}
	for _, v := range values {
		if !v.IsValid {
			continue
		}
		from, to := maxTime(v.StartTime, start), minTime(v.EndTime, end)
		if to.After(from) {
			secs := decimal.NewFromFloat(to.Sub(from).Seconds())
			b.ValidSeconds = b.ValidSeconds.Add(secs)
			if v.Faulted {
				b.FaultedSeconds = b.FaultedSeconds.Add(secs)
			}
		}
		if v.Faulted && !v.StartTime.Before(start) && v.StartTime.Before(end) {
			b.Faults++
		}
	}
	if b.ValidSeconds.IsPositive() {
		b.FaultedRatio = b.FaultedSeconds.DivRound(b.ValidSeconds, 4)
	}
	return b
}

// truncate aligns t to the start of its step window in UTC.
func truncate(t time.Time, step time.Duration) time.Time {
	if step == 24*time.Hour {
		year, month, day := t.UTC().Date()
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	return t.UTC().Truncate(step)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
