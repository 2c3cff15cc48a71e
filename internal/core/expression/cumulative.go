package expression

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CumulativeType selects how a parameter's value is folded into a running total.
type CumulativeType string

const (
	CumulativeNone        CumulativeType = ""
	Accumulate            CumulativeType = "Accumulate"
	AccumulateTimeSeconds CumulativeType = "AccumulateTimeSeconds"
	AccumulateTimeMinutes CumulativeType = "AccumulateTimeMinutes"
	AccumulateTimeHours   CumulativeType = "AccumulateTimeHours"
)

// Cumulative defines a running total. The first value seeds the total as is;
// later values are folded in with the time elapsed since the previous one.
type Cumulative interface {
	Initial(v decimal.Decimal) decimal.Decimal
	Apply(current, v decimal.Decimal, gap time.Duration) decimal.Decimal
}

// Cumulatives is the registry of supported running totals.
var Cumulatives = map[CumulativeType]Cumulative{
	Accumulate:            valueSum{},
	AccumulateTimeSeconds: timeWeighted{unit: time.Second},
	AccumulateTimeMinutes: timeWeighted{unit: time.Minute},
	AccumulateTimeHours:   timeWeighted{unit: time.Hour},
}

// ParseCumulativeType accepts any casing of a registered type. An empty
// string yields CumulativeNone.
func ParseCumulativeType(s string) (CumulativeType, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return CumulativeNone, nil
	}
	for t := range Cumulatives {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return CumulativeNone, fmt.Errorf("unknown cumulative type %q", s)
}

type valueSum struct{}

func (valueSum) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (valueSum) Apply(cur, v decimal.Decimal, _ time.Duration) decimal.Decimal {
	return cur.Add(v)
}

// timeWeighted integrates value over elapsed time in the given unit.
type timeWeighted struct {
	unit time.Duration
}

func (timeWeighted) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (w timeWeighted) Apply(cur, v decimal.Decimal, gap time.Duration) decimal.Decimal {
	if gap <= 0 {
		return cur
	}
	elapsed := decimal.NewFromInt(int64(gap)).Div(decimal.NewFromInt(int64(w.unit)))
	return cur.Add(v.Mul(elapsed))
}
