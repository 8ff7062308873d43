package instrument

import (
	"fmt"
	"strings"
	"time"
)

// AssetClass discriminates the instrument union.
type AssetClass string

const (
	ClassFuture AssetClass = "future"
	ClassStock  AssetClass = "stock"
	ClassForex  AssetClass = "forex"
)

// Instrument identifies a downloadable series. Identity is
// (class, symbol[, year, month for futures]); the storage layer and the
// planner are the two places that switch on the concrete type.
type Instrument interface {
	Symbol() string
	Class() AssetClass
	// ID is the identity string; two instruments are equal iff IDs match.
	ID() string
}

// Stock is an undated equity series.
type Stock struct {
	Sym string
}

func (s Stock) Symbol() string    { return s.Sym }
func (s Stock) Class() AssetClass { return ClassStock }
func (s Stock) ID() string        { return fmt.Sprintf("stock:%s", s.Sym) }

// Forex is an undated currency pair.
type Forex struct {
	Sym string
}

func (f Forex) Symbol() string    { return f.Sym }
func (f Forex) Class() AssetClass { return ClassForex }
func (f Forex) ID() string        { return fmt.Sprintf("forex:%s", f.Sym) }

// MonthCodes are the futures delivery month letters in calendar order.
const MonthCodes = "FGHJKMNQUVXZ"

// MonthOf maps a delivery month code to its calendar month.
func MonthOf(code rune) (time.Month, error) {
	idx := strings.IndexRune(MonthCodes, code)
	if idx < 0 {
		return 0, fmt.Errorf("invalid month code %q", string(code))
	}
	return time.Month(idx + 1), nil
}

// CodeOf maps a calendar month to its delivery month code.
func CodeOf(m time.Month) rune {
	return rune(MonthCodes[int(m)-1])
}

// Future is a dated contract. Its validity window is derived from the
// delivery month and DaysCount, and jobs are clamped to it.
type Future struct {
	Sym         string // logical symbol used for storage layout, e.g. "GC"
	FuturesCode string // provider-facing contract code, e.g. "GCH24"
	Year        int
	MonthCode   rune
	TickDate    time.Time // earliest intraday availability; zero = unknown
	DaysCount   int       // length of the validity window in days
}

func (f Future) Symbol() string    { return f.Sym }
func (f Future) Class() AssetClass { return ClassFuture }

func (f Future) ID() string {
	return fmt.Sprintf("future:%s:%d%s", f.Sym, f.Year, string(f.MonthCode))
}

// Month returns the delivery month.
func (f Future) Month() time.Month {
	m, err := MonthOf(f.MonthCode)
	if err != nil {
		return time.January
	}
	return m
}

// ContractWindow returns the validity range [start, end]. The window ends at
// the last moment of the delivery month and reaches back DaysCount days.
func (f Future) ContractWindow() (time.Time, time.Time) {
	firstOfNext := time.Date(f.Year, f.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	end := firstOfNext.Add(-time.Second)
	start := end.AddDate(0, 0, -f.DaysCount)
	return start, end
}

// NewFuture builds a contract for a (year, month code) pair off a config.
// The provider-facing code follows the {code}{month}{yy} convention.
func NewFuture(symbol string, year int, monthCode rune, tickDate time.Time, daysCount int) (Future, error) {
	if _, err := MonthOf(monthCode); err != nil {
		return Future{}, err
	}
	if daysCount <= 0 {
		return Future{}, fmt.Errorf("future %s: days_count must be positive, got %d", symbol, daysCount)
	}
	return Future{
		Sym:         symbol,
		FuturesCode: fmt.Sprintf("%s%s%02d", symbol, string(monthCode), year%100),
		Year:        year,
		MonthCode:   monthCode,
		TickDate:    tickDate,
		DaysCount:   daysCount,
	}, nil
}

// Equal reports identity equality between two instruments.
func Equal(a, b Instrument) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID() == b.ID()
}
