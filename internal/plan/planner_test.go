package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/series"
)

// fakeProvider supports a configurable frequency set and records nothing.
type fakeProvider struct {
	name  string
	freqs []period.FrequencyAttributes
}

func (f *fakeProvider) Name() string                    { return f.name }
func (f *fakeProvider) Login(context.Context) error     { return nil }
func (f *fakeProvider) Logout(context.Context) error    { return nil }
func (f *fakeProvider) SupportedFrequencies() []period.FrequencyAttributes {
	return f.freqs
}
func (f *fakeProvider) FetchHistoricalData(context.Context, instrument.Instrument, period.Period, time.Time, time.Time) (*series.Series, error) {
	return series.New(nil, series.Metadata{}), nil
}

func dailyProvider() *fakeProvider {
	return &fakeProvider{name: "fake", freqs: []period.FrequencyAttributes{
		{Frequency: period.Day1},
		{Frequency: period.Hour1, MinStart: period.MinStart{Relative: 730 * 24 * time.Hour}},
	}}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
}

func newPlanner() *Planner {
	return &Planner{Provider: dailyProvider(), Now: fixedNow}
}

func TestPlanSingleStock(t *testing.T) {
	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Day1}},
	}

	lists := newPlanner().Plan(configs, 2024, 2024)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].Jobs, 1)

	job := lists[0].Jobs[0]
	assert.Equal(t, "AAPL", job.Instrument.Symbol())
	assert.Equal(t, period.Day1, job.Period)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), job.Start)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), job.End)
	assert.Equal(t, "AAPL", job.InstrumentKey)
}

func TestPlanFutureCycle(t *testing.T) {
	configs := map[string]instrument.Config{
		"GC": {
			AssetClass: instrument.ClassFuture,
			Code:       "GC",
			Cycle:      "HMUZ",
			DaysCount:  360,
			Periods:    []period.Period{period.Day1},
		},
	}

	lists := newPlanner().Plan(configs, 2023, 2024)
	require.Len(t, lists, 1)

	// two years times four delivery months
	jobs := lists[0].Jobs
	require.Len(t, jobs, 8)

	codes := make(map[string]bool)
	for _, job := range jobs {
		fut, ok := job.Instrument.(instrument.Future)
		require.True(t, ok)
		codes[fut.FuturesCode] = true

		cStart, cEnd := fut.ContractWindow()
		assert.True(t, !job.Start.Before(cStart), "%s starts inside its contract window", fut.FuturesCode)
		assert.True(t, !job.End.After(cEnd), "%s ends inside its contract window", fut.FuturesCode)
		assert.True(t, job.Start.Before(job.End))
	}
	for _, want := range []string{"GCH23", "GCM23", "GCU23", "GCZ23", "GCH24", "GCM24", "GCU24", "GCZ24"} {
		assert.True(t, codes[want], "missing contract %s", want)
	}

	// most-recent-first within the instrument list
	for i := 1; i < len(jobs); i++ {
		assert.False(t, jobs[i].Start.After(jobs[i-1].Start))
	}
}

func TestPlanSkipsDisabled(t *testing.T) {
	configs := map[string]instrument.Config{
		"EURUSD": {AssetClass: instrument.ClassForex, Code: "EURUSD", Periods: nil},
	}
	assert.Empty(t, newPlanner().Plan(configs, 2024, 2024))
}

func TestPlanSkipsUnsupportedPeriods(t *testing.T) {
	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Minute1}},
	}
	assert.Empty(t, newPlanner().Plan(configs, 2024, 2024))
}

func TestPlanHonorsMinStart(t *testing.T) {
	// hourly data only reaches back 730 days from the fixed now; a 2019
	// request yields no hourly jobs but keeps daily ones
	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Day1, period.Hour1}},
	}
	lists := newPlanner().Plan(configs, 2019, 2019)
	require.Len(t, lists, 1)
	for _, job := range lists[0].Jobs {
		assert.Equal(t, period.Day1, job.Period)
	}
}

func TestPlanStartDateOverride(t *testing.T) {
	start := instrument.ConfigDate{Time: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Day1}, StartDate: &start},
	}
	lists := newPlanner().Plan(configs, 2024, 2024)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].Jobs, 1)
	assert.Equal(t, start.Time, lists[0].Jobs[0].Start)
}

func TestPlanEndClampedToNow(t *testing.T) {
	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Day1}},
	}
	lists := newPlanner().Plan(configs, 2025, 2026)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].Jobs, 1)
	assert.Equal(t, fixedNow(), lists[0].Jobs[0].End)
}

func TestPlanFoldsResidualSliver(t *testing.T) {
	// a leap year spans one day more than a 365-day max range; the
	// residual sliver folds into the single window instead of becoming a
	// standalone job that could never return three bars
	p := &fakeProvider{name: "fake", freqs: []period.FrequencyAttributes{
		{Frequency: period.Day1, MaxWindow: 365 * 24 * time.Hour},
	}}
	planner := &Planner{Provider: p, Now: fixedNow}

	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Day1}},
	}
	lists := planner.Plan(configs, 2024, 2024)
	require.Len(t, lists, 1)

	jobs := lists[0].Jobs
	require.Len(t, jobs, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), jobs[0].Start)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), jobs[0].End)
}

func TestPlanSubdividesByMaxRange(t *testing.T) {
	p := &fakeProvider{name: "fake", freqs: []period.FrequencyAttributes{
		{Frequency: period.Day1, MaxWindow: 90 * 24 * time.Hour},
	}}
	planner := &Planner{Provider: p, Now: fixedNow}

	configs := map[string]instrument.Config{
		"AAPL": {AssetClass: instrument.ClassStock, Code: "AAPL", Periods: []period.Period{period.Day1}},
	}
	lists := planner.Plan(configs, 2024, 2024)
	require.Len(t, lists, 1)

	jobs := lists[0].Jobs
	// a 366-day year in 90-day windows needs five requests
	require.Len(t, jobs, 5)
	for _, job := range jobs {
		assert.LessOrEqual(t, job.End.Sub(job.Start), 90*24*time.Hour)
	}
}
