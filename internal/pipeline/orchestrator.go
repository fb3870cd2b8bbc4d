package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-extractor/internal/collect"
	"github.com/sells-group/lead-extractor/internal/phone"
	"github.com/sells-group/lead-extractor/internal/verify"
)

// Target bounds and collection sizing defaults.
const (
	MinTarget = 1
	MaxTarget = 500

	// DefaultBatchCollect caps how many fresh candidates one loop iteration
	// asks the scheduler for.
	DefaultBatchCollect = 120

	// DefaultOverCollect multiplies remaining demand when verification is
	// enabled, to absorb verification attrition.
	DefaultOverCollect = 6
)

// Collector produces batches of fresh candidates. Implemented by
// *collect.Scheduler.
type Collector interface {
	CollectBatch(ctx context.Context, want int) ([]collect.Candidate, bool, error)
	PagesFetched() int
}

// Verifier confirms which numbers are reachable. Implemented by
// *verify.Client.
type Verifier interface {
	Verify(ctx context.Context, numbers []phone.CanonicalNumber) *verify.Result
}

// Params describes one collection request.
type Params struct {
	Category   string
	Localities []string
	Target     int // clamped to [MinTarget, MaxTarget]
	Verify     bool
}

// Config tunes the orchestration loop. Zero values use the defaults.
type Config struct {
	BatchCollect int
	OverCollect  int
}

func (c Config) withDefaults() Config {
	if c.BatchCollect <= 0 {
		c.BatchCollect = DefaultBatchCollect
	}
	if c.OverCollect <= 0 {
		c.OverCollect = DefaultOverCollect
	}
	return c
}

// Item is one accepted number as delivered to the caller.
type Item struct {
	Phone     string `json:"phone"`
	Confirmed *bool  `json:"confirmed"`
}

// Summary mirrors the done event, plus the accepted items for one-shot
// (non-streaming) retrieval.
type Summary struct {
	Count          int    `json:"count"`
	ConfirmedCount int    `json:"confirmedCount"`
	RejectedCount  int    `json:"rejectedCount"`
	Searched       int    `json:"searched"`
	Exhausted      bool   `json:"exhausted"`
	Items          []Item `json:"items"`
}

// Orchestrator drives one session: collect, verify, emit, until the target
// is met or every locality is exhausted. It always terminates.
type Orchestrator struct {
	collector Collector
	verifier  Verifier
	cfg       Config
}

// New creates an orchestrator. verifier may be nil when verification will
// never be requested.
func New(collector Collector, verifier Verifier, cfg Config) *Orchestrator {
	return &Orchestrator{collector: collector, verifier: verifier, cfg: cfg.withDefaults()}
}

// Run executes the session loop, emitting events to sink as it goes. The
// cancellation condition is checked after every batch; a canceled context
// stops collection and verification promptly and returns ctx's error with
// the partial summary. Counters are monotonic for the whole session.
func (o *Orchestrator) Run(ctx context.Context, params Params, sink Sink) (Summary, error) {
	target := clampTarget(params.Target)
	sessionID := uuid.NewString()

	log := zap.L().With(
		zap.String("session_id", sessionID),
		zap.String("category", params.Category),
		zap.Strings("localities", params.Localities),
		zap.Int("target", target),
		zap.Bool("verify", params.Verify),
	)
	log.Info("session started")

	sink.Emit(StartEvent{SessionID: sessionID})

	var (
		summary   Summary
		exhausted bool
	)

	for summary.Count < target && !exhausted {
		want := o.batchWant(target-summary.Count, params.Verify)

		batch, allExhausted, err := o.collector.CollectBatch(ctx, want)
		exhausted = allExhausted
		if err != nil {
			log.Info("session canceled during collection", zap.Error(err))
			summary.Searched = o.searched(&summary, params.Verify)
			summary.Exhausted = exhausted
			return summary, err
		}

		if len(batch) == 0 {
			sink.Emit(o.progress(&summary, params.Verify))
			if exhausted {
				break
			}
			continue
		}

		numbers := make([]phone.CanonicalNumber, 0, len(batch))
		for _, cand := range batch {
			numbers = append(numbers, cand.Number)
		}

		if params.Verify {
			res := o.verifier.Verify(ctx, numbers)
			summary.ConfirmedCount += len(res.Confirmed)
			summary.RejectedCount += len(res.Rejected)

			confirmed := true
			for _, n := range numbers {
				if summary.Count >= target {
					break
				}
				if !res.IsConfirmed(n) {
					continue
				}
				item := Item{Phone: n.String(), Confirmed: &confirmed}
				summary.Items = append(summary.Items, item)
				summary.Count++
				sink.Emit(ItemEvent(item))
			}
		} else {
			for _, n := range numbers {
				if summary.Count >= target {
					break
				}
				item := Item{Phone: n.String()}
				summary.Items = append(summary.Items, item)
				summary.Count++
				sink.Emit(ItemEvent(item))
			}
		}

		sink.Emit(o.progress(&summary, params.Verify))

		if err := ctx.Err(); err != nil {
			log.Info("session canceled", zap.Error(err))
			summary.Searched = o.searched(&summary, params.Verify)
			summary.Exhausted = exhausted
			return summary, err
		}
	}

	summary.Searched = o.searched(&summary, params.Verify)
	summary.Exhausted = exhausted

	sink.Emit(DoneEvent{
		Count:          summary.Count,
		ConfirmedCount: summary.ConfirmedCount,
		RejectedCount:  summary.RejectedCount,
		Searched:       summary.Searched,
		Exhausted:      summary.Exhausted,
	})

	log.Info("session done",
		zap.Int("count", summary.Count),
		zap.Int("confirmed", summary.ConfirmedCount),
		zap.Int("rejected", summary.RejectedCount),
		zap.Bool("exhausted", summary.Exhausted),
		zap.Int("pages_fetched", o.collector.PagesFetched()),
	)
	return summary, nil
}

// batchWant sizes the next collection request: remaining demand, inflated
// by the over-collection multiplier when verification will thin the batch,
// capped at BatchCollect.
func (o *Orchestrator) batchWant(remaining int, verifying bool) int {
	want := remaining
	if verifying {
		want = remaining * o.cfg.OverCollect
	}
	return min(want, o.cfg.BatchCollect)
}

func (o *Orchestrator) progress(s *Summary, verifying bool) ProgressEvent {
	return ProgressEvent{
		Searched:       o.searched(s, verifying),
		ConfirmedCount: s.ConfirmedCount,
		RejectedCount:  s.RejectedCount,
	}
}

// searched counts numbers whose status is settled: with verification on,
// every number the remote returned a verdict for; otherwise every emitted
// number. Unknown numbers are excluded either way.
func (o *Orchestrator) searched(s *Summary, verifying bool) int {
	if verifying {
		return s.ConfirmedCount + s.RejectedCount
	}
	return s.Count
}

func clampTarget(n int) int {
	if n < MinTarget {
		return MinTarget
	}
	if n > MaxTarget {
		return MaxTarget
	}
	return n
}
