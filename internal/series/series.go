package series

import (
	"sort"
	"time"

	"github.com/vortexdl/vortex/internal/period"
)

// Bar is a single OHLCV row. Extra carries provider-specific columns
// (open interest, adjusted close, wap) keyed by normalized column name.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Extra     map[string]float64
}

// Metadata is the sidecar written next to every data file.
type Metadata struct {
	Symbol         string        `json:"symbol"`
	Period         period.Period `json:"period"`
	RequestedStart time.Time     `json:"requested_start"`
	RequestedEnd   time.Time     `json:"requested_end"`
	FirstRowDate   time.Time     `json:"first_row_date"`
	LastRowDate    time.Time     `json:"last_row_date"`
	DataProvider   string        `json:"data_provider"`
	ExpirationDate *time.Time    `json:"expiration_date,omitempty"`
	CreatedDate    time.Time     `json:"created_date"`
}

// Series is a time-indexed price table plus its sidecar metadata.
// Bars are kept sorted ascending by timestamp with a unique index; all
// timestamps are UTC.
type Series struct {
	Bars []Bar
	Meta Metadata
}

// New builds a series from bars, normalizing to sorted-unique-UTC and
// filling the row-range metadata fields.
func New(bars []Bar, meta Metadata) *Series {
	s := &Series{Bars: normalize(bars), Meta: meta}
	s.refreshRowRange()
	return s
}

func (s *Series) Len() int { return len(s.Bars) }

// First returns the earliest bar timestamp, or the zero time when empty.
func (s *Series) First() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// Last returns the latest bar timestamp, or the zero time when empty.
func (s *Series) Last() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

// Covers reports whether the series spans [start, end] within tolerance on
// both edges.
func (s *Series) Covers(start, end time.Time, tolerance time.Duration) bool {
	if len(s.Bars) == 0 {
		return false
	}
	return !s.First().After(start.Add(tolerance)) && !s.Last().Before(end.Add(-tolerance))
}

func (s *Series) refreshRowRange() {
	s.Meta.FirstRowDate = s.First()
	s.Meta.LastRowDate = s.Last()
}

// Merge combines the receiver with other: bars are concatenated,
// deduplicated on timestamp keeping the later-supplied value, and re-sorted.
// The merged metadata keeps the receiver's identity fields, widens the
// requested range, and takes other's provider and expiration (the fresher
// fetch wins). Merge is associative.
func (s *Series) Merge(other *Series) *Series {
	if other == nil || len(other.Bars) == 0 {
		out := New(s.Bars, s.Meta)
		return out
	}
	combined := make([]Bar, 0, len(s.Bars)+len(other.Bars))
	combined = append(combined, s.Bars...)
	combined = append(combined, other.Bars...)

	meta := s.Meta
	if meta.Symbol == "" {
		meta.Symbol = other.Meta.Symbol
	}
	if meta.Period == "" {
		meta.Period = other.Meta.Period
	}
	if other.Meta.DataProvider != "" {
		meta.DataProvider = other.Meta.DataProvider
	}
	if other.Meta.ExpirationDate != nil {
		meta.ExpirationDate = other.Meta.ExpirationDate
	}
	if meta.RequestedStart.IsZero() || (!other.Meta.RequestedStart.IsZero() && other.Meta.RequestedStart.Before(meta.RequestedStart)) {
		meta.RequestedStart = other.Meta.RequestedStart
	}
	if other.Meta.RequestedEnd.After(meta.RequestedEnd) {
		meta.RequestedEnd = other.Meta.RequestedEnd
	}
	return New(combined, meta)
}

// normalize converts timestamps to UTC, sorts ascending, and drops duplicate
// timestamps keeping the last occurrence in input order.
func normalize(bars []Bar) []Bar {
	if len(bars) == 0 {
		return nil
	}
	type keyed struct {
		bar Bar
		pos int
	}
	latest := make(map[int64]keyed, len(bars))
	for i, b := range bars {
		b.Timestamp = b.Timestamp.UTC()
		k := b.Timestamp.UnixNano()
		if prev, ok := latest[k]; !ok || i >= prev.pos {
			latest[k] = keyed{bar: b, pos: i}
		}
	}
	out := make([]Bar, 0, len(latest))
	for _, v := range latest {
		out = append(out, v.bar)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
