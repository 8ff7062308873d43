package download

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/plan"
	"github.com/vortexdl/vortex/internal/storage"
)

func keyedJob(p *fakeProvider, st storage.Storage, key string) plan.Job {
	job := dailyJob(p, st)
	job.Instrument = instrument.Stock{Sym: key}
	job.InstrumentKey = key
	return job
}

func TestRunAllSucceed(t *testing.T) {
	d, prov, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	jobs := []plan.Job{
		keyedJob(prov, st, "AAPL"),
		keyedJob(prov, st, "MSFT"),
	}
	report, err := proc.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Succeeded)
	assert.False(t, report.Aborted)
}

func TestRunContinuesPastLowData(t *testing.T) {
	d, prov, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	short := keyedJob(prov, st, "AAPL")
	short.Start = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	jobs := []plan.Job{short, keyedJob(prov, st, "MSFT")}
	report, err := proc.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Len(t, report.LowData, 1)
	assert.False(t, report.Aborted)
}

func TestRunContinuesPastEmptyWindow(t *testing.T) {
	d, prov, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	// the window sits entirely after the downloader's fixed now, so it
	// clamps empty at execution time
	future := keyedJob(prov, st, "AAPL")
	future.Start = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	future.End = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	jobs := []plan.Job{future, keyedJob(prov, st, "MSFT")}
	report, err := proc.Run(context.Background(), jobs)
	require.NoError(t, err, "an evaporated window skips the job, not the run")
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Len(t, report.LowData, 1)
	assert.False(t, report.Aborted)
}

func TestRunContinuesPastDataNotFound(t *testing.T) {
	d, _, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	missing := &fakeProvider{err: errs.New(errs.KindDataNotFound, "404", "no data")}
	okProv := &fakeProvider{}

	jobs := []plan.Job{
		keyedJob(missing, st, "AAPL"),
		keyedJob(okProv, st, "MSFT"),
	}
	report, err := proc.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Len(t, report.NotFound, 1)
}

func TestRunAbortsOnAllowanceExceeded(t *testing.T) {
	d, _, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	exhausted := &fakeProvider{err: errs.New(errs.KindAllowanceExceeded, "QUOTA", "daily allowance used up")}
	okProv := &fakeProvider{}

	jobs := []plan.Job{
		keyedJob(okProv, st, "AAPL"),
		keyedJob(exhausted, st, "GC"),
		keyedJob(okProv, st, "MSFT"),
	}
	report, err := proc.Run(context.Background(), jobs)
	require.NoError(t, err, "an exhausted allowance is absorbed, not propagated")
	assert.True(t, report.Aborted)
	assert.Equal(t, 2, report.Processed, "remaining jobs are skipped")
	assert.Equal(t, 1, report.Succeeded)
	assert.Len(t, okProv.requests, 1, "MSFT was never fetched")
}

func TestRunPropagatesFatalErrors(t *testing.T) {
	d, _, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	broken := &fakeProvider{err: errs.New(errs.KindAuthenticationFailed, "AUTH", "bad credentials")}
	okProv := &fakeProvider{}

	jobs := []plan.Job{
		keyedJob(broken, st, "AAPL"),
		keyedJob(okProv, st, "MSFT"),
	}
	report, err := proc.Run(context.Background(), jobs)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuthenticationFailed, errs.KindOf(err))
	assert.Equal(t, 1, report.Processed)
	assert.Len(t, report.Failed, 1)
	assert.Empty(t, okProv.requests)
}

func TestRunHonorsCancellation(t *testing.T) {
	d, prov, st := newTestDownloader(t)
	proc := &Processor{Downloader: d}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := proc.Run(ctx, []plan.Job{keyedJob(prov, st, "AAPL")})
	require.Error(t, err)
	assert.True(t, report.Aborted)
	assert.Zero(t, report.Processed)
	assert.Empty(t, prov.requests)
}

func TestRunParallel(t *testing.T) {
	d, _, st := newTestDownloader(t)
	proc := &Processor{Downloader: d, Parallelism: 4}

	// one provider per instrument keeps request recording race-free
	jobs := []plan.Job{
		keyedJob(&fakeProvider{}, st, "AAPL"),
		keyedJob(&fakeProvider{}, st, "MSFT"),
		keyedJob(&fakeProvider{}, st, "GOOG"),
	}
	report, err := proc.RunParallel(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 3, report.Succeeded)
}

func TestGroupByInstrument(t *testing.T) {
	a1 := plan.Job{InstrumentKey: "A"}
	b1 := plan.Job{InstrumentKey: "B"}
	a2 := plan.Job{InstrumentKey: "A"}

	groups := groupByInstrument([]plan.Job{a1, b1, a2})
	require.Len(t, groups, 2)
	assert.Equal(t, "A", groups[0][0].InstrumentKey)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "B", groups[1][0].InstrumentKey)
	assert.Len(t, groups[1], 1)
}
