package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdl/vortex/internal/period"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(d int, close float64) Bar {
	return Bar{Timestamp: day(d), Open: close, High: close, Low: close, Close: close, Volume: 100}
}

func TestNewNormalizes(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	s := New([]Bar{
		bar(3, 3),
		bar(1, 1),
		{Timestamp: time.Date(2024, 1, 1, 19, 0, 0, 0, est), Close: 42}, // 2024-01-02 00:00 UTC
	}, Metadata{})

	require.Equal(t, 3, s.Len())
	assert.Equal(t, day(1), s.First())
	assert.Equal(t, day(3), s.Last())
	assert.Equal(t, time.UTC, s.Bars[1].Timestamp.Location())
	assert.Equal(t, 42.0, s.Bars[1].Close)

	assert.Equal(t, day(1), s.Meta.FirstRowDate)
	assert.Equal(t, day(3), s.Meta.LastRowDate)
}

func TestNewDedupKeepsLast(t *testing.T) {
	s := New([]Bar{bar(1, 10), bar(1, 20)}, Metadata{})
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 20.0, s.Bars[0].Close)
}

func TestCovers(t *testing.T) {
	s := New([]Bar{bar(5, 1), bar(10, 1), bar(15, 1)}, Metadata{})
	tol := 48 * time.Hour

	assert.True(t, s.Covers(day(5), day(15), 0))
	assert.True(t, s.Covers(day(4), day(16), tol))
	assert.False(t, s.Covers(day(1), day(15), tol))
	assert.False(t, s.Covers(day(5), day(20), tol))

	empty := New(nil, Metadata{})
	assert.False(t, empty.Covers(day(1), day(2), tol))
}

func TestMergeDedupPrefersOther(t *testing.T) {
	existing := New([]Bar{bar(1, 1), bar(2, 2), bar(3, 3)}, Metadata{
		Symbol:         "GC",
		Period:         period.Day1,
		DataProvider:   "barchart",
		RequestedStart: day(1),
		RequestedEnd:   day(3),
	})
	fresh := New([]Bar{bar(3, 30), bar(4, 4)}, Metadata{
		DataProvider:   "yahoo",
		RequestedStart: day(3),
		RequestedEnd:   day(4),
	})

	merged := existing.Merge(fresh)
	require.Equal(t, 4, merged.Len())
	assert.Equal(t, 30.0, merged.Bars[2].Close, "overlapping bar takes the fresher value")

	assert.Equal(t, "GC", merged.Meta.Symbol)
	assert.Equal(t, period.Day1, merged.Meta.Period)
	assert.Equal(t, "yahoo", merged.Meta.DataProvider)
	assert.Equal(t, day(1), merged.Meta.RequestedStart)
	assert.Equal(t, day(4), merged.Meta.RequestedEnd)
	assert.Equal(t, day(1), merged.Meta.FirstRowDate)
	assert.Equal(t, day(4), merged.Meta.LastRowDate)
}

func TestMergeEmptyOther(t *testing.T) {
	s := New([]Bar{bar(1, 1)}, Metadata{Symbol: "GC"})

	assert.Equal(t, 1, s.Merge(nil).Len())
	assert.Equal(t, 1, s.Merge(New(nil, Metadata{})).Len())
}

func TestMergeAssociative(t *testing.T) {
	a := New([]Bar{bar(1, 1), bar(2, 2)}, Metadata{})
	b := New([]Bar{bar(2, 20), bar(3, 3)}, Metadata{})
	c := New([]Bar{bar(3, 30), bar(4, 4)}, Metadata{})

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))

	require.Equal(t, left.Len(), right.Len())
	for i := range left.Bars {
		assert.Equal(t, left.Bars[i].Timestamp, right.Bars[i].Timestamp)
		assert.Equal(t, left.Bars[i].Close, right.Bars[i].Close)
	}
}

func TestMergeExpirationWins(t *testing.T) {
	exp := day(20)
	a := New([]Bar{bar(1, 1)}, Metadata{})
	b := New([]Bar{bar(2, 2)}, Metadata{ExpirationDate: &exp})

	merged := a.Merge(b)
	require.NotNil(t, merged.Meta.ExpirationDate)
	assert.Equal(t, exp, *merged.Meta.ExpirationDate)
}
