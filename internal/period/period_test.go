package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, p := range All() {
		parsed, err := Parse(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
		assert.True(t, parsed.Valid())
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("45m")
	require.Error(t, err)
	assert.False(t, Period("45m").Valid())
}

func TestIntraday(t *testing.T) {
	assert.True(t, Minute1.Intraday())
	assert.True(t, Minute30.Intraday())
	assert.True(t, Hour1.Intraday())
	assert.False(t, Day1.Intraday())
	assert.False(t, Week1.Intraday())
	assert.False(t, Month3.Intraday())
}

func TestDurationOrdering(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].Duration(), all[i-1].Duration(),
			"%s should be longer than %s", all[i], all[i-1])
	}
}

func TestMinStartResolve(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	abs := MinStart{Absolute: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, abs.Absolute, abs.Resolve(now))

	rel := MinStart{Relative: 30 * 24 * time.Hour}
	assert.Equal(t, now.AddDate(0, 0, -30), rel.Resolve(now))

	var zero MinStart
	assert.True(t, zero.IsZero())
	assert.True(t, zero.Resolve(now).IsZero())
}

func TestFrequencyAttributesWindow(t *testing.T) {
	cases := []struct {
		name string
		fa   FrequencyAttributes
		want time.Duration
	}{
		{
			name: "unconstrained",
			fa:   FrequencyAttributes{Frequency: Day1},
			want: 0,
		},
		{
			name: "records only",
			fa:   FrequencyAttributes{Frequency: Day1, MaxRecords: 10},
			want: 10 * 24 * time.Hour,
		},
		{
			name: "window only",
			fa:   FrequencyAttributes{Frequency: Minute1, MaxWindow: 7 * 24 * time.Hour},
			want: 7 * 24 * time.Hour,
		},
		{
			name: "records tighter than window",
			fa:   FrequencyAttributes{Frequency: Hour1, MaxRecords: 24, MaxWindow: 30 * 24 * time.Hour},
			want: 24 * time.Hour,
		},
		{
			name: "window tighter than records",
			fa:   FrequencyAttributes{Frequency: Day1, MaxRecords: 1000, MaxWindow: 24 * time.Hour},
			want: 24 * time.Hour,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.fa.Window())
		})
	}
}
