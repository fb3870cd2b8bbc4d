// Package extract pulls phone numbers out of one rendered local-results page
// using an ordered strategy cascade. Cheap strategies run first; the
// click-through fallback runs only for remaining unmet demand.
package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-extractor/internal/phone"
	"github.com/sells-group/lead-extractor/internal/render"
)

// Selectors for the local-results page layout.
const (
	// SelCards matches one result card per business.
	SelCards = "div[role='article'], div.VkpGBb"
	// SelFeed matches the scrollable results container.
	SelFeed = "div[role='feed']"
	// SelResults matches anything that proves results rendered at all.
	SelResults = "div[role='article'], div.VkpGBb, div[role='feed']"
	// selTelLink matches the call affordance inside a card or detail panel.
	selTelLink = "a[href^='tel:']"
	// selDetailPanel matches the panel opened by clicking a card.
	selDetailPanel = "div[role='dialog'], div[role='region'], div[aria-modal='true']"
)

// DefaultMaxClicks bounds how many cards the disclosure fallback opens.
const DefaultMaxClicks = 4

// Sink accumulates candidate fragments for one page. Add normalizes the
// fragment and reports whether it was accepted (valid, not yet seen on this
// page, limit not reached).
type Sink interface {
	Add(raw string) bool
	Full() bool
}

// Strategy is one layer of the extraction cascade.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, page render.Page, sink Sink)
}

// Extractor runs the fixed cascade over a rendered page.
type Extractor struct {
	norm       *phone.Normalizer
	strategies []Strategy
}

// NewExtractor wires the cascade in its fixed order: structured tel links,
// per-card text scan, whole-feed text scan, then the bounded click-through
// disclosure fallback. maxClicks <= 0 uses DefaultMaxClicks.
func NewExtractor(norm *phone.Normalizer, maxClicks int) *Extractor {
	if maxClicks <= 0 {
		maxClicks = DefaultMaxClicks
	}
	return &Extractor{
		norm: norm,
		strategies: []Strategy{
			&telLinkStrategy{},
			&cardTextStrategy{pattern: norm.Pattern()},
			&feedTextStrategy{pattern: norm.Pattern()},
			&disclosureStrategy{maxClicks: maxClicks, pattern: norm.Pattern()},
		},
	}
}

// ExtractPage runs the cascade and returns up to limit canonical numbers in
// discovery order. Numbers are page-locally deduplicated; fragments the
// normalizer rejects are dropped silently. The page may receive simulated
// clicks and an Escape press, but is left safe for a subsequent navigation.
func (e *Extractor) ExtractPage(ctx context.Context, page render.Page, limit int) []phone.CanonicalNumber {
	if limit <= 0 {
		return nil
	}

	sink := newPageSink(e.norm, limit)
	for _, s := range e.strategies {
		if sink.Full() || ctx.Err() != nil {
			break
		}
		before := len(sink.out)
		s.Extract(ctx, page, sink)
		if added := len(sink.out) - before; added > 0 {
			zap.L().Debug("extract: strategy yielded numbers",
				zap.String("strategy", s.Name()),
				zap.Int("added", added),
			)
		}
	}
	return sink.out
}

// pageSink implements Sink with page-local dedup and a hard limit.
type pageSink struct {
	norm  *phone.Normalizer
	limit int
	seen  map[phone.CanonicalNumber]struct{}
	out   []phone.CanonicalNumber
}

func newPageSink(norm *phone.Normalizer, limit int) *pageSink {
	return &pageSink{
		norm:  norm,
		limit: limit,
		seen:  make(map[phone.CanonicalNumber]struct{}),
	}
}

func (s *pageSink) Add(raw string) bool {
	if s.Full() {
		return false
	}
	num, ok := s.norm.Normalize(raw)
	if !ok {
		return false
	}
	if _, dup := s.seen[num]; dup {
		return false
	}
	s.seen[num] = struct{}{}
	s.out = append(s.out, num)
	return true
}

func (s *pageSink) Full() bool {
	return len(s.out) >= s.limit
}
