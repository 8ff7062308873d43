// Package plan expands instrument configurations into time-windowed
// download jobs and interleaves them fairly across instruments.
package plan

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vortexdl/vortex/internal/instrument"
	"github.com/vortexdl/vortex/internal/period"
	"github.com/vortexdl/vortex/internal/provider"
	"github.com/vortexdl/vortex/internal/storage"
)

// Job is the unit of work: fetch one instrument/period window from a
// provider and persist it. Invariant: Start <= End. The effective window is
// clamped again at execution time against min-start and now.
type Job struct {
	Provider      provider.Provider
	Storage       storage.Storage
	BackupStorage storage.Storage
	Instrument    instrument.Instrument
	Period        period.Period
	Start         time.Time
	End           time.Time

	// InstrumentKey is the config key the job was planned from; the
	// scheduler and the parallel processor group by it.
	InstrumentKey string
}

// InstrumentJobs is one logical instrument's job list. Jobs are stored
// most-recent-first so the scheduler can pop from the tail while draining
// earliest-first.
type InstrumentJobs struct {
	Key   string
	Cycle string
	Jobs  []Job
}

// Planner turns instrument configs plus a year range into per-instrument
// job lists.
type Planner struct {
	Provider provider.Provider
	Storage  storage.Storage
	Backup   storage.Storage

	// Now is replaced in tests.
	Now func() time.Time
}

// Plan expands every enabled config. Jobs are filtered by provider
// capability and data availability; instruments with empty periods are
// skipped entirely.
func (pl *Planner) Plan(configs map[string]instrument.Config, startYear, endYear int) []InstrumentJobs {
	now := pl.now()
	rangeStart := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(endYear, time.December, 31, 23, 59, 59, 0, time.UTC)
	if rangeEnd.After(now) {
		rangeEnd = now
	}

	var out []InstrumentJobs
	for _, key := range instrument.SortedKeys(configs) {
		cfg := configs[key]
		if !cfg.Enabled() {
			log.Debug().Str("instrument", key).Msg("skipping disabled instrument")
			continue
		}
		start := rangeStart
		if s := cfg.StartTime(); !s.IsZero() && s.After(start) {
			start = s
		}
		if !start.Before(rangeEnd) {
			continue
		}

		var jobs []Job
		if cfg.AssetClass == instrument.ClassFuture {
			jobs = pl.planFuture(key, cfg, start, rangeEnd, now)
		} else {
			jobs = pl.planUndated(key, cfg, start, rangeEnd, now)
		}
		if len(jobs) == 0 {
			continue
		}
		reverse(jobs)
		out = append(out, InstrumentJobs{Key: key, Cycle: cfg.Cycle, Jobs: jobs})
		log.Info().
			Str("instrument", key).
			Int("jobs", len(jobs)).
			Msg("planned instrument")
	}
	return out
}

// planFuture iterates (year, month code) pairs of the roll cycle, clamping
// each contract's job window to the intersection of its validity range and
// the requested range.
func (pl *Planner) planFuture(key string, cfg instrument.Config, start, end, now time.Time) []Job {
	var jobs []Job
	for year := start.Year(); year <= end.Year(); year++ {
		for _, monthCode := range cfg.Cycle {
			fut, err := instrument.NewFuture(cfg.Code, year, monthCode, cfg.TickTime(), cfg.DaysCount)
			if err != nil {
				log.Warn().Str("instrument", key).Err(err).Msg("skipping invalid contract")
				continue
			}
			cStart, cEnd := fut.ContractWindow()
			jobStart := maxTime(cStart, start)
			jobEnd := minTime(cEnd, end)
			if !jobStart.Before(jobEnd) {
				continue
			}
			for _, p := range cfg.Periods {
				if !provider.Supports(pl.Provider, p) {
					continue
				}
				if p.Intraday() && !fut.TickDate.IsZero() && jobStart.Before(fut.TickDate) {
					continue
				}
				if ms := provider.MinStart(pl.Provider, p, now); !ms.IsZero() && jobStart.Before(ms) {
					continue
				}
				jobs = append(jobs, pl.newJob(key, fut, p, jobStart, jobEnd))
			}
		}
	}
	return jobs
}

// planUndated subdivides the stock/forex range into max-range-sized windows.
func (pl *Planner) planUndated(key string, cfg instrument.Config, start, end, now time.Time) []Job {
	var inst instrument.Instrument
	if cfg.AssetClass == instrument.ClassForex {
		inst = instrument.Forex{Sym: cfg.Code}
	} else {
		inst = instrument.Stock{Sym: cfg.Code}
	}

	var jobs []Job
	for _, p := range cfg.Periods {
		if !provider.Supports(pl.Provider, p) {
			continue
		}
		s := start
		if p.Intraday() {
			if tick := cfg.TickTime(); !tick.IsZero() && tick.After(s) {
				s = tick
			}
		}
		if ms := provider.MinStart(pl.Provider, p, now); !ms.IsZero() && ms.After(s) {
			s = ms
		}
		if !s.Before(end) {
			continue
		}
		window := provider.MaxRange(pl.Provider, p)
		if window <= 0 {
			window = end.Sub(s)
		}
		for cursor := s; cursor.Before(end); {
			next := cursor.Add(window)
			// a residual shorter than three bars cannot satisfy the
			// low-data check; fold it into this window
			if end.Sub(next) < 3*p.Duration() {
				next = end
			}
			jobs = append(jobs, pl.newJob(key, inst, p, cursor, next))
			cursor = next
		}
	}
	return jobs
}

func (pl *Planner) newJob(key string, inst instrument.Instrument, p period.Period, start, end time.Time) Job {
	return Job{
		Provider:      pl.Provider,
		Storage:       pl.Storage,
		BackupStorage: pl.Backup,
		Instrument:    inst,
		Period:        p,
		Start:         start,
		End:           end,
		InstrumentKey: key,
	}
}

func (pl *Planner) now() time.Time {
	if pl.Now != nil {
		return pl.Now().UTC()
	}
	return time.Now().UTC()
}

func reverse(jobs []Job) {
	for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
