package plan

import (
	"github.com/rs/zerolog/log"
)

// DrawsPerRound weights an instrument's draw rate by its roll-cycle length.
// Contracts with denser cycles emit more jobs and get more draws per round
// so no instrument's backlog starves the rest.
func DrawsPerRound(cycle string) int {
	switch n := len(cycle); {
	case n > 10:
		return 3
	case n > 7:
		return 2
	default:
		return 1
	}
}

// Schedule flattens per-instrument job lists into one fairly interleaved
// list by weighted round-robin. Per-instrument temporal ordering is
// preserved: lists arrive most-recent-first, so popping from the tail
// drains each instrument earliest-window-first.
func Schedule(lists []InstrumentJobs) []Job {
	total := 0
	for _, l := range lists {
		total += len(l.Jobs)
	}
	scheduled := make([]Job, 0, total)

	pending := make([][]Job, len(lists))
	for i, l := range lists {
		pending[i] = l.Jobs
	}

	for len(scheduled) < total {
		for i := range pending {
			draws := DrawsPerRound(lists[i].Cycle)
			for d := 0; d < draws && len(pending[i]) > 0; d++ {
				last := len(pending[i]) - 1
				scheduled = append(scheduled, pending[i][last])
				pending[i] = pending[i][:last]
			}
		}
	}

	log.Info().
		Int("instruments", len(lists)).
		Int("jobs", total).
		Msg("scheduled download jobs")
	return scheduled
}
