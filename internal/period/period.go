package period

import (
	"fmt"
	"time"
)

// Period is a bar frequency. The set is closed: providers advertise which
// subset they support via FrequencyAttributes.
type Period string

const (
	Minute1  Period = "1m"
	Minute2  Period = "2m"
	Minute5  Period = "5m"
	Minute10 Period = "10m"
	Minute15 Period = "15m"
	Minute20 Period = "20m"
	Minute30 Period = "30m"
	Hour1    Period = "1h"
	Day1     Period = "1d"
	Week1    Period = "1W"
	Month1   Period = "1M"
	Month3   Period = "3M"
)

// All lists every known period in ascending bar-duration order.
func All() []Period {
	return []Period{
		Minute1, Minute2, Minute5, Minute10, Minute15, Minute20, Minute30,
		Hour1, Day1, Week1, Month1, Month3,
	}
}

var durations = map[Period]time.Duration{
	Minute1:  time.Minute,
	Minute2:  2 * time.Minute,
	Minute5:  5 * time.Minute,
	Minute10: 10 * time.Minute,
	Minute15: 15 * time.Minute,
	Minute20: 20 * time.Minute,
	Minute30: 30 * time.Minute,
	Hour1:    time.Hour,
	Day1:     24 * time.Hour,
	Week1:    7 * 24 * time.Hour,
	Month1:   30 * 24 * time.Hour,
	Month3:   90 * 24 * time.Hour,
}

// Parse returns the Period for its string form.
func Parse(s string) (Period, error) {
	p := Period(s)
	if _, ok := durations[p]; !ok {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

func (p Period) String() string { return string(p) }

// Duration returns the nominal bar duration, used to size fetch windows.
func (p Period) Duration() time.Duration { return durations[p] }

// Intraday reports whether bars are shorter than one day. Intraday data is
// gated behind an instrument's tick date.
func (p Period) Intraday() bool { return durations[p] < 24*time.Hour }

func (p Period) Valid() bool {
	_, ok := durations[p]
	return ok
}

// MinStart is the earliest timestamp a provider can serve for a frequency,
// either as an absolute date or as an offset back from now.
type MinStart struct {
	Absolute time.Time
	Relative time.Duration
}

// Resolve returns the effective earliest start at the given instant.
// A zero MinStart resolves to the zero time (no lower bound).
func (m MinStart) Resolve(now time.Time) time.Time {
	if !m.Absolute.IsZero() {
		return m.Absolute
	}
	if m.Relative > 0 {
		return now.Add(-m.Relative)
	}
	return time.Time{}
}

func (m MinStart) IsZero() bool { return m.Absolute.IsZero() && m.Relative == 0 }

// FrequencyAttributes describes per-period provider constraints.
type FrequencyAttributes struct {
	Frequency  Period
	MaxRecords int           // bar cap per request, 0 = unlimited
	MaxWindow  time.Duration // time cap per request, 0 = unlimited
	MinStart   MinStart
}

// Window returns the widest usable request window: the smaller of MaxWindow
// and MaxRecords bars worth of time. Zero means unconstrained.
func (fa FrequencyAttributes) Window() time.Duration {
	byRecords := time.Duration(0)
	if fa.MaxRecords > 0 {
		byRecords = time.Duration(fa.MaxRecords) * fa.Frequency.Duration()
	}
	switch {
	case fa.MaxWindow == 0:
		return byRecords
	case byRecords == 0:
		return fa.MaxWindow
	case byRecords < fa.MaxWindow:
		return byRecords
	default:
		return fa.MaxWindow
	}
}
