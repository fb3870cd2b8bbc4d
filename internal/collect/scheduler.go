package collect

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-extractor/internal/phone"
)

// PageFetcher fetches one results page for a locality at a given offset and
// returns the canonical numbers found on it, bounded by limit. An error
// means the page could not be rendered at all; an empty slice means it
// rendered but held nothing new.
type PageFetcher interface {
	FetchPage(ctx context.Context, locality string, offset, limit int) ([]phone.CanonicalNumber, error)
}

// Candidate is a discovered number tagged with its provenance. Immutable
// once created.
type Candidate struct {
	Number   phone.CanonicalNumber
	Locality string
	Offset   int
}

// Options tunes the scheduler.
type Options struct {
	Cursor CursorOptions
	// InterPageDelay paces page fetches to stay under anti-automation and
	// rate-limit radars. Zero disables pacing.
	InterPageDelay time.Duration
}

// Scheduler round-robins page fetches across localities and deduplicates
// every number against a session-wide seen-set. The seen-set is owned here
// and mutated only from the driving goroutine; Scheduler is not safe for
// concurrent use.
type Scheduler struct {
	cursors      []*Cursor
	fetcher      PageFetcher
	seen         map[phone.CanonicalNumber]struct{}
	limiter      *rate.Limiter
	pagesFetched int
}

// NewScheduler creates a scheduler with one active cursor per locality.
func NewScheduler(localities []string, fetcher PageFetcher, opts Options) *Scheduler {
	cursors := make([]*Cursor, 0, len(localities))
	for _, loc := range localities {
		cursors = append(cursors, NewCursor(loc, opts.Cursor))
	}
	var limiter *rate.Limiter
	if opts.InterPageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.InterPageDelay), 1)
	}
	return &Scheduler{
		cursors: cursors,
		fetcher: fetcher,
		seen:    make(map[phone.CanonicalNumber]struct{}),
		limiter: limiter,
	}
}

// CollectBatch fetches pages round-robin until it has up to want fresh
// candidates or every locality is exhausted. Returned numbers are globally
// deduplicated: no number ever appears in two batches of the same session.
// The allExhausted flag reports whether the source has nothing left.
func (s *Scheduler) CollectBatch(ctx context.Context, want int) (batch []Candidate, allExhausted bool, err error) {
	if want <= 0 {
		return nil, s.AllExhausted(), nil
	}

	for len(batch) < want && !s.AllExhausted() {
		for _, cur := range s.cursors {
			if len(batch) >= want {
				break
			}
			if cur.Exhausted() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return batch, s.AllExhausted(), err
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return batch, s.AllExhausted(), err
				}
			}

			offset := cur.Offset()
			nums, err := s.fetcher.FetchPage(ctx, cur.Locality(), offset, want-len(batch))
			s.pagesFetched++
			if err != nil {
				if ctx.Err() != nil {
					return batch, s.AllExhausted(), ctx.Err()
				}
				zap.L().Warn("collect: page fetch failed",
					zap.String("locality", cur.Locality()),
					zap.Int("offset", offset),
					zap.Error(err),
				)
				cur.RecordFailure()
				continue
			}

			fresh := 0
			for _, n := range nums {
				if _, dup := s.seen[n]; dup {
					continue
				}
				s.seen[n] = struct{}{}
				batch = append(batch, Candidate{Number: n, Locality: cur.Locality(), Offset: offset})
				fresh++
			}
			cur.RecordPage(fresh)

			if cur.Exhausted() {
				zap.L().Info("collect: locality exhausted",
					zap.String("locality", cur.Locality()),
					zap.Int("final_offset", cur.Offset()),
				)
			}
		}
	}

	return batch, s.AllExhausted(), nil
}

// AllExhausted reports whether every locality cursor is exhausted.
func (s *Scheduler) AllExhausted() bool {
	for _, cur := range s.cursors {
		if !cur.Exhausted() {
			return false
		}
	}
	return true
}

// PagesFetched returns how many page fetches the session has attempted.
func (s *Scheduler) PagesFetched() int { return s.pagesFetched }

// UniqueCount returns the size of the session deduplication set.
func (s *Scheduler) UniqueCount() int { return len(s.seen) }

// Cursors exposes the per-locality cursors for inspection.
func (s *Scheduler) Cursors() []*Cursor { return s.cursors }
