// Package tick defines the market tick record, its JSON wire codec, and the
// derived price-change calculation.
package tick

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layout is the date-time format used on the wire and in API parameters.
const Layout = "2006-01-02 15:04:05"

// DateTime wraps time.Time so it marshals as "yyyy-MM-dd HH:mm:ss",
// the format the historical bhavcopy data and the HTTP layer use.
type DateTime struct {
	time.Time
}

// NewDateTime builds a DateTime from a time.Time.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(Layout))
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return fmt.Errorf("parse datetime %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// Tick is one timestamped price record for a symbol. Field names follow the
// bhavcopy column names so stored payloads stay readable against the source
// data. Optional numeric fields are pointers: absent and zero are different
// things for pricing data.
type Tick struct {
	TradDt              DateTime  `json:"tradDt"`
	BizDt               DateTime  `json:"bizDt"`
	Sgmt                string    `json:"sgmt,omitempty"`
	Src                 string    `json:"src,omitempty"`
	FinInstrmTp         string    `json:"finInstrmTp,omitempty"`
	FinInstrmID         *int64    `json:"finInstrmId,omitempty"`
	ISIN                string    `json:"iSIN,omitempty"`
	TckrSymb            string    `json:"tckrSymb"`
	SctySrs             string    `json:"sctySrs,omitempty"`
	XpryDt              *DateTime `json:"xpryDt,omitempty"`
	FininstrmActlXpryDt *DateTime `json:"fininstrmActlXpryDt,omitempty"`
	StrkPric            *float64  `json:"strkPric,omitempty"`
	OptnTp              string    `json:"optnTp,omitempty"`
	FinInstrmNm         string    `json:"finInstrmNm,omitempty"`
	OpnPric             *float64  `json:"opnPric,omitempty"`
	HghPric             *float64  `json:"hghPric,omitempty"`
	LwPric              *float64  `json:"lwPric,omitempty"`
	ClsPric             *float64  `json:"clsPric,omitempty"`
	LastPric            *float64  `json:"lastPric,omitempty"`
	PrvsClsgPric        *float64  `json:"prvsClsgPric,omitempty"`
	UndrlygPric         *float64  `json:"undrlygPric,omitempty"`
	SttlmPric           *float64  `json:"sttlmPric,omitempty"`
	ChngePric           *float64  `json:"chngePric,omitempty"`
	ChngePricPct        *float64  `json:"chngePricPct,omitempty"`
	OpnIntrst           string    `json:"opnIntrst,omitempty"`
	ChngInOpnIntrst     string    `json:"chngInOpnIntrst,omitempty"`
	TtlTradgVol         *int64    `json:"ttlTradgVol,omitempty"`
	TtlTrfVal           *float64  `json:"ttlTrfVal,omitempty"`
	TtlNbOfTxsExctd     string    `json:"ttlNbOfTxsExctd,omitempty"`
	SsnID               string    `json:"ssnId,omitempty"`
	NewBrdLotQty        *int64    `json:"newBrdLotQty,omitempty"`
	Rmks                string    `json:"rmks,omitempty"`
	Rsvd1               string    `json:"rsvd1,omitempty"`
	Rsvd2               string    `json:"rsvd2,omitempty"`
	Rsvd3               string    `json:"rsvd3,omitempty"`
	Rsvd4               string    `json:"rsvd4,omitempty"`
}

// Score returns the store ordering key for the tick: epoch milliseconds of
// its event time.
func (t *Tick) Score() float64 {
	return float64(t.TradDt.UnixMilli())
}

// Clone returns a shallow copy. Pointer fields still reference the original
// values, which is fine because ticks are immutable at rest; callers replace
// the pointers they mutate.
func (t *Tick) Clone() *Tick {
	c := *t
	return &c
}

// Decode parses a stored payload into a Tick. A failure is isolated to the
// entry: callers skip the payload and keep processing siblings.
func Decode(payload string) (*Tick, error) {
	var t Tick
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	return &t, nil
}

// Encode serializes a Tick for storage.
func Encode(t *Tick) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode tick: %w", err)
	}
	return string(b), nil
}

func ptr[T any](v T) *T { return &v }

// Float returns a new *float64. Handy when building ticks by hand.
func Float(v float64) *float64 { return ptr(v) }

// Int returns a new *int64.
func Int(v int64) *int64 { return ptr(v) }
