package download

import (
	"fmt"
	"time"

	"github.com/vortexdl/vortex/internal/plan"
)

// RunReport accumulates per-job outcomes for the end-of-run summary.
type RunReport struct {
	Started time.Time
	Ended   time.Time

	Total     int
	Processed int
	Succeeded int
	Existing  int
	LowData   []string
	NotFound  []string
	Failed    []string

	// Aborted is set when the run stopped early, e.g. on an exhausted
	// provider allowance.
	Aborted bool
	Reason  string
}

func newRunReport(total int) *RunReport {
	return &RunReport{Started: time.Now().UTC(), Total: total}
}

func (r *RunReport) finish() {
	r.Ended = time.Now().UTC()
}

// Duration is the wall-clock run time.
func (r *RunReport) Duration() time.Duration {
	end := r.Ended
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Sub(r.Started)
}

// JobLabel renders a job for report lists and log lines.
func JobLabel(job plan.Job) string {
	return fmt.Sprintf("%s %s %s..%s",
		job.Instrument.Symbol(),
		job.Period,
		job.Start.Format("2006-01-02"),
		job.End.Format("2006-01-02"))
}
