package engine

import "math"

// Model defaults. 2% base volatility with a 0.5x-2x multiplier per draw,
// an occasional ±3% shock, and a slight upward trend bias.
const (
	DefaultBaseVolatility = 0.02
	DefaultLargeMoveProb  = 0.1
	DefaultLargeMoveRange = 0.06 // full span, ±3%
	DefaultTrendBias      = 0.005
	DefaultMinPrice       = 1.0
)

// PriceModel produces the next price of a bounded random walk. Every call
// consumes fresh randomness; the model keeps no per-symbol state.
type PriceModel struct {
	BaseVolatility float64
	LargeMoveProb  float64
	LargeMoveRange float64
	TrendBias      float64
	MinPrice       float64

	rng *RNG
}

// NewPriceModel creates a model with the default constants.
func NewPriceModel(rng *RNG) *PriceModel {
	return &PriceModel{
		BaseVolatility: DefaultBaseVolatility,
		LargeMoveProb:  DefaultLargeMoveProb,
		LargeMoveRange: DefaultLargeMoveRange,
		TrendBias:      DefaultTrendBias,
		MinPrice:       DefaultMinPrice,
		rng:            rng,
	}
}

// NextPrice draws a new last price from the current one.
//
// The walk is a base percentage move scaled by a random volatility
// multiplier, an occasional independent large shock, and a trend term with
// an asymmetric uniform(-0.4, 0.6) range. A price that would fall below
// MinPrice is re-randomized just above the floor rather than clamped, so
// charts don't show a hard wall at the minimum.
func (m *PriceModel) NextPrice(current float64) float64 {
	volMult := m.rng.Uniform(0.5, 2.0)
	pct := m.rng.Uniform(-1, 1) * m.BaseVolatility * volMult

	if m.rng.Float64() < m.LargeMoveProb {
		pct += m.rng.Uniform(-0.5, 0.5) * m.LargeMoveRange
	}

	pct += m.rng.Uniform(-0.4, 0.6) * m.TrendBias

	price := current * (1 + pct)
	if price < m.MinPrice {
		price = m.MinPrice + m.rng.Float64()*2
	}

	// Round half-up to 2 decimal places.
	return math.Floor(price*100+0.5) / 100
}
