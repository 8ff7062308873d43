// Package download runs planned jobs: inspect existing data, fetch the
// missing window, merge, persist.
package download

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vortexdl/vortex/internal/correlation"
	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/plan"
	"github.com/vortexdl/vortex/internal/provider"
	"github.com/vortexdl/vortex/internal/resilience"
	"github.com/vortexdl/vortex/internal/series"
	"github.com/vortexdl/vortex/internal/storage"
)

// Mode selects the per-job behavior.
type Mode int

const (
	// ModeUpdating merges with data already on disk, fetching only gaps.
	ModeUpdating Mode = iota
	// ModeBackfilling fetches the full window and overwrites.
	ModeBackfilling
)

// Outcome is a job's terminal result.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeExists Outcome = "exists"
	OutcomeFailed Outcome = "failed"
)

// DefaultCoverageTolerance is the slack allowed when deciding whether
// on-disk data already covers a job window.
const DefaultCoverageTolerance = 7 * 24 * time.Hour

// Downloader executes single jobs. It is shared across the run; per-job
// state lives on the stack.
type Downloader struct {
	Executor *resilience.Executor
	Mode     Mode

	DryRun      bool
	ForceBackup bool
	// RandomSleepMax is the anti-bot pause upper bound in seconds; the
	// actual pause is uniform in [1, 1+RandomSleepMax). <=0 disables.
	RandomSleepMax    int
	CoverageTolerance time.Duration

	// Now, sleep, and randFloat are replaced in tests.
	Now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

func NewDownloader(exec *resilience.Executor) *Downloader {
	return &Downloader{
		Executor:          exec,
		CoverageTolerance: DefaultCoverageTolerance,
	}
}

// Process runs one job through the update-or-backfill state machine.
func (d *Downloader) Process(ctx context.Context, job plan.Job) (Outcome, error) {
	ctx, _ = correlation.Start(ctx, "process_job", job.Provider.Name())
	logger := correlation.Logger(ctx, log.Logger).With().
		Str("symbol", job.Instrument.Symbol()).
		Str("period", job.Period.String()).
		Logger()

	start, end, err := d.clampWindow(job)
	if err != nil {
		return OutcomeFailed, err
	}

	var existing *series.Series
	if d.Mode == ModeUpdating {
		existing, err = d.loadExisting(job)
		if err != nil {
			return OutcomeFailed, err
		}
		if existing != nil && existing.Covers(start, end, d.tolerance()) {
			logger.Debug().
				Time("first", existing.First()).
				Time("last", existing.Last()).
				Msg("existing data covers the window")
			if d.ForceBackup && job.BackupStorage != nil && !d.DryRun {
				if err := job.BackupStorage.Persist(existing, job.Instrument, job.Period); err != nil {
					return OutcomeFailed, err
				}
			}
			return OutcomeExists, nil
		}
		start, end = adjustForGaps(existing, start, end)
	}

	if err := d.antiBotPause(ctx); err != nil {
		return OutcomeFailed, err
	}

	fetched, err := d.Executor.Fetch(ctx, job.Provider, job.Instrument, job.Period, start, end)
	if err != nil {
		return OutcomeFailed, err
	}
	if fetched.Len() < 3 {
		return OutcomeFailed, errs.New(errs.KindLowData, "LOW_DATA",
			fmt.Sprintf("only %d rows fetched for %s %s", fetched.Len(), job.Instrument.Symbol(), job.Period))
	}

	merged := fetched
	if existing != nil {
		merged = existing.Merge(fetched)
	}
	merged.Meta.Symbol = job.Instrument.Symbol()
	merged.Meta.Period = job.Period
	merged.Meta.RequestedStart = minT(job.Start, merged.Meta.RequestedStart)
	merged.Meta.RequestedEnd = maxT(job.End, merged.Meta.RequestedEnd)

	if d.DryRun {
		logger.Info().Int("rows", merged.Len()).Msg("dry run, skipping persist")
		return OutcomeOK, nil
	}
	if err := job.Storage.Persist(merged, job.Instrument, job.Period); err != nil {
		return OutcomeFailed, err
	}
	if job.BackupStorage != nil {
		if err := job.BackupStorage.Persist(merged, job.Instrument, job.Period); err != nil {
			return OutcomeFailed, err
		}
	}
	logger.Info().
		Int("rows", merged.Len()).
		Time("start", start).
		Time("end", end).
		Msg("downloaded and persisted")
	return OutcomeOK, nil
}

// clampWindow narrows the job window to [max(start, min_supported),
// min(end, now)].
func (d *Downloader) clampWindow(job plan.Job) (time.Time, time.Time, error) {
	now := d.now()
	start, end := job.Start, job.End
	if ms := provider.MinStart(job.Provider, job.Period, now); !ms.IsZero() && ms.After(start) {
		start = ms
	}
	if end.After(now) {
		end = now
	}
	// a window that evaporated between plan time and execution (relative
	// min-start drift during a long run) skips the job, not the run
	if !start.Before(end) {
		return start, end, errs.New(errs.KindLowData, "JOB_EMPTY_WINDOW",
			fmt.Sprintf("job window for %s %s is empty after clamping", job.Instrument.Symbol(), job.Period))
	}
	return start, end, nil
}

func (d *Downloader) loadExisting(job plan.Job) (*series.Series, error) {
	existing, err := job.Storage.Load(job.Instrument, job.Period)
	if err != nil {
		if storage.NotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

// adjustForGaps shrinks the fetch window to the missing portion. When the
// stored block overlaps the window, fetching resumes at its last row; when
// the stored block sits entirely after the window, the fetch end is pulled
// up to abut it so no hole opens between the two blocks.
func adjustForGaps(existing *series.Series, start, end time.Time) (time.Time, time.Time) {
	if existing == nil || existing.Len() == 0 {
		return start, end
	}
	first, last := existing.First(), existing.Last()
	switch {
	case !last.Before(start) && last.Before(end):
		return last, end
	case first.After(end):
		return start, first
	default:
		return start, end
	}
}

func (d *Downloader) antiBotPause(ctx context.Context) error {
	if d.RandomSleepMax <= 0 {
		return nil
	}
	rf := d.randFloat
	if rf == nil {
		rf = rand.Float64
	}
	sl := d.sleep
	if sl == nil {
		sl = sleepCtx
	}
	pause := time.Duration((1 + rf()*float64(d.RandomSleepMax)) * float64(time.Second))
	return sl(ctx, pause)
}

func (d *Downloader) tolerance() time.Duration {
	if d.CoverageTolerance > 0 {
		return d.CoverageTolerance
	}
	return DefaultCoverageTolerance
}

func (d *Downloader) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func minT(a, b time.Time) time.Time {
	if b.IsZero() || (!a.IsZero() && a.Before(b)) {
		return a
	}
	return b
}

func maxT(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
