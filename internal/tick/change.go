package tick

import (
	"math"

	"github.com/shopspring/decimal"
)

// Precision controls the significant-digit rounding of the derived change
// fields. The defaults reproduce the source system's output: 2 significant
// digits for the absolute change, 1 for the percentage. Coarse, but any
// consumer of the stored payloads depends on it.
type Precision struct {
	ChangeDigits  int32
	PercentDigits int32
}

// DefaultPrecision matches the historical output format.
var DefaultPrecision = Precision{ChangeDigits: 2, PercentDigits: 1}

var hundred = decimal.NewFromInt(100)

// ApplyChange recomputes chngePric and chngePricPct from lastPric and
// prvsClsgPric. Returns false without touching anything else when either
// input is absent; the tick stays usable, just without derived fields.
func ApplyChange(t *Tick, p Precision) bool {
	if t.LastPric == nil || t.PrvsClsgPric == nil {
		t.ChngePric = nil
		t.ChngePricPct = nil
		return false
	}

	last := decimal.NewFromFloat(*t.LastPric)
	prev := decimal.NewFromFloat(*t.PrvsClsgPric)

	change := roundSignificant(last.Sub(prev), p.ChangeDigits)
	t.ChngePric = Float(change.InexactFloat64())

	if last.IsZero() {
		t.ChngePricPct = Float(0)
		return true
	}
	pct := roundSignificant(change.Div(last), p.PercentDigits)
	pct = roundSignificant(pct.Mul(hundred), p.PercentDigits)
	t.ChngePricPct = Float(pct.InexactFloat64())
	return true
}

// roundSignificant rounds d to the given number of significant digits,
// half away from zero.
func roundSignificant(d decimal.Decimal, digits int32) decimal.Decimal {
	if d.IsZero() || digits <= 0 {
		return d
	}
	f, _ := d.Abs().Float64()
	order := int32(math.Floor(math.Log10(f)))
	return d.Round(digits - 1 - order)
}
