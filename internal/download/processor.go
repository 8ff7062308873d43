package download

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vortexdl/vortex/internal/correlation"
	"github.com/vortexdl/vortex/internal/errs"
	"github.com/vortexdl/vortex/internal/metrics"
	"github.com/vortexdl/vortex/internal/plan"
)

// Processor drives a scheduled job list through a Downloader.
//
// Error policy: low-data and not-found results are recorded and the run
// continues; an exhausted download allowance aborts the remaining jobs
// without failing the run; anything else stops the run and propagates.
type Processor struct {
	Downloader *Downloader

	// Parallelism bounds concurrent instruments in RunParallel.
	Parallelism int
}

// Run processes jobs sequentially in scheduled order.
func (p *Processor) Run(ctx context.Context, jobs []plan.Job) (*RunReport, error) {
	ctx, _ = correlation.Start(ctx, "download_run", "")
	logger := correlation.Logger(ctx, log.Logger)

	report := newRunReport(len(jobs))
	defer report.finish()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			report.Reason = "canceled"
			return report, err
		}

		outcome, err := p.Downloader.Process(ctx, job)
		report.Processed++
		abort, runErr := record(report, job, outcome, err, logger)
		logger.Info().Msgf("%d/%d jobs processed ---- %d downloads",
			report.Processed, report.Total, report.Succeeded)
		if runErr != nil {
			return report, runErr
		}
		if abort {
			break
		}
	}
	return report, nil
}

// RunParallel processes jobs with instrument-level parallelism. Jobs of one
// instrument stay on one goroutine in scheduled order, so storage files are
// never written concurrently.
func (p *Processor) RunParallel(ctx context.Context, jobs []plan.Job) (*RunReport, error) {
	if p.Parallelism <= 1 {
		return p.Run(ctx, jobs)
	}
	ctx, _ = correlation.Start(ctx, "download_run", "")
	logger := correlation.Logger(ctx, log.Logger)

	report := newRunReport(len(jobs))
	defer report.finish()

	var mu sync.Mutex
	aborted := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Parallelism)
	for _, group := range groupByInstrument(jobs) {
		group := group
		g.Go(func() error {
			for _, job := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				mu.Lock()
				stop := aborted
				mu.Unlock()
				if stop {
					return nil
				}

				outcome, err := p.Downloader.Process(gctx, job)

				mu.Lock()
				report.Processed++
				abort, runErr := record(report, job, outcome, err, logger)
				logger.Info().Msgf("%d/%d jobs processed ---- %d downloads",
					report.Processed, report.Total, report.Succeeded)
				if abort {
					aborted = true
				}
				mu.Unlock()
				if runErr != nil {
					return runErr
				}
				if abort {
					return nil
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return report, err
}

// record classifies one job result into the report. It returns whether the
// run should abort remaining jobs and the error to propagate, if any.
func record(report *RunReport, job plan.Job, outcome Outcome, err error, logger zerolog.Logger) (bool, error) {
	if err == nil {
		switch outcome {
		case OutcomeExists:
			report.Existing++
			metrics.JobsProcessed.WithLabelValues("exists").Inc()
		default:
			report.Succeeded++
			metrics.JobsProcessed.WithLabelValues("ok").Inc()
		}
		return false, nil
	}

	label := JobLabel(job)
	switch errs.KindOf(err) {
	case errs.KindLowData:
		report.LowData = append(report.LowData, label)
		metrics.JobsProcessed.WithLabelValues("low_data").Inc()
		logger.Warn().Str("job", label).Err(err).Msg("insufficient data, skipping")
		return false, nil
	case errs.KindDataNotFound:
		report.NotFound = append(report.NotFound, label)
		metrics.JobsProcessed.WithLabelValues("not_found").Inc()
		logger.Warn().Str("job", label).Err(err).Msg("no data for window, skipping")
		return false, nil
	case errs.KindAllowanceExceeded:
		report.Aborted = true
		report.Reason = "download allowance exhausted"
		metrics.JobsProcessed.WithLabelValues("aborted").Inc()
		logger.Error().Str("job", label).Err(err).Msg("allowance exhausted, aborting remaining jobs")
		return true, nil
	default:
		report.Failed = append(report.Failed, label)
		metrics.JobsProcessed.WithLabelValues("failed").Inc()
		return false, err
	}
}

// groupByInstrument splits the scheduled list into per-instrument sublists,
// preserving per-instrument order and first-appearance group order.
func groupByInstrument(jobs []plan.Job) [][]plan.Job {
	index := make(map[string]int)
	var groups [][]plan.Job
	for _, job := range jobs {
		i, ok := index[job.InstrumentKey]
		if !ok {
			i = len(groups)
			index[job.InstrumentKey] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], job)
	}
	return groups
}
