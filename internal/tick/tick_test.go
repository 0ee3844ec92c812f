package tick

import (
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}

func TestCodecRoundTrip(t *testing.T) {
	in := &Tick{
		TradDt:       NewDateTime(mustTime(t, "2025-01-01 09:00:00")),
		BizDt:        NewDateTime(mustTime(t, "2025-01-01 09:00:00")),
		TckrSymb:     "ACME",
		ISIN:         "INE000A01001",
		LastPric:     Float(101.50),
		PrvsClsgPric: Float(98.00),
		TtlTradgVol:  Int(12345),
	}

	payload, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(payload, `"tradDt":"2025-01-01 09:00:00"`) {
		t.Errorf("payload missing formatted tradDt: %s", payload)
	}
	if !strings.Contains(payload, `"iSIN":"INE000A01001"`) {
		t.Errorf("payload missing iSIN field: %s", payload)
	}

	out, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.TradDt.Equal(in.TradDt.Time) {
		t.Errorf("tradDt = %v, want %v", out.TradDt, in.TradDt)
	}
	if out.TckrSymb != "ACME" {
		t.Errorf("tckrSymb = %q, want ACME", out.TckrSymb)
	}
	if out.LastPric == nil || *out.LastPric != 101.50 {
		t.Errorf("lastPric = %v, want 101.50", out.LastPric)
	}
	if out.TtlTradgVol == nil || *out.TtlTradgVol != 12345 {
		t.Errorf("ttlTradgVol = %v, want 12345", out.TtlTradgVol)
	}
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	in := &Tick{
		TradDt:   NewDateTime(mustTime(t, "2025-01-01 09:00:00")),
		TckrSymb: "ACME",
	}
	payload, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(payload, "lastPric") {
		t.Errorf("absent lastPric should be omitted: %s", payload)
	}
	if !strings.Contains(payload, `"bizDt":null`) {
		t.Errorf("zero bizDt should marshal as null: %s", payload)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("{not json"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := Decode(`{"tradDt":"01/01/2025"}`); err == nil {
		t.Fatal("expected error for unknown date format")
	}
}

func TestScore(t *testing.T) {
	tm := mustTime(t, "2025-01-01 09:00:00")
	tk := &Tick{TradDt: NewDateTime(tm)}
	if got, want := tk.Score(), float64(tm.UnixMilli()); got != want {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Tick{
		TradDt:   NewDateTime(mustTime(t, "2025-01-01 09:00:00")),
		TckrSymb: "ACME",
		LastPric: Float(100),
	}

	c := orig.Clone()
	c.TckrSymb = "OTHER"
	c.LastPric = Float(200)
	c.TradDt = NewDateTime(orig.TradDt.Add(time.Hour))

	if orig.TckrSymb != "ACME" {
		t.Errorf("clone mutation leaked into original symbol: %q", orig.TckrSymb)
	}
	if *orig.LastPric != 100 {
		t.Errorf("clone mutation leaked into original price: %v", *orig.LastPric)
	}
}
