package extract

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-extractor/internal/render"
)

// telLinkStrategy reads the call affordance of every result card. Structured
// links are the most reliable source, so this layer runs first.
type telLinkStrategy struct{}

func (telLinkStrategy) Name() string { return "tel-links" }

func (telLinkStrategy) Extract(ctx context.Context, page render.Page, sink Sink) {
	for _, card := range page.Query(SelCards) {
		if sink.Full() || ctx.Err() != nil {
			return
		}
		for _, link := range card.Query(selTelLink) {
			href, ok := link.Attribute("href")
			if !ok {
				continue
			}
			if sink.Add(strings.TrimPrefix(href, "tel:")) {
				break
			}
		}
	}
}

// cardTextStrategy scans each card's visible text and accepts the first
// phone-shaped match per card.
type cardTextStrategy struct {
	pattern *regexp.Regexp
}

func (cardTextStrategy) Name() string { return "card-text" }

func (s cardTextStrategy) Extract(ctx context.Context, page render.Page, sink Sink) {
	for _, card := range page.Query(SelCards) {
		if sink.Full() || ctx.Err() != nil {
			return
		}
		for _, m := range s.pattern.FindAllString(card.Text(), -1) {
			if sink.Add(m) {
				break
			}
		}
	}
}

// feedTextStrategy scans the whole results container in one pass, catching
// cards whose numbers only appear in a collapsed summary area.
type feedTextStrategy struct {
	pattern *regexp.Regexp
}

func (feedTextStrategy) Name() string { return "feed-text" }

func (s feedTextStrategy) Extract(ctx context.Context, page render.Page, sink Sink) {
	text := page.Text(SelFeed)
	if text == "" {
		return
	}
	for _, m := range s.pattern.FindAllString(text, -1) {
		if sink.Full() || ctx.Err() != nil {
			return
		}
		sink.Add(m)
	}
}

// disclosureStrategy opens a bounded number of cards to reveal the detail
// panel, scans it, and dismisses it before moving on. The most expensive
// layer, so it only runs for remaining unmet demand.
type disclosureStrategy struct {
	maxClicks int
	pattern   *regexp.Regexp
}

func (disclosureStrategy) Name() string { return "disclosure" }

func (s disclosureStrategy) Extract(ctx context.Context, page render.Page, sink Sink) {
	cards := page.Query(SelCards)
	clicks := min(s.maxClicks, len(cards))

	for i := 0; i < clicks; i++ {
		if sink.Full() || ctx.Err() != nil {
			return
		}

		if err := cards[i].Click(); err != nil {
			zap.L().Debug("extract: card click failed", zap.Int("card", i), zap.Error(err))
			continue
		}
		if err := page.WaitFor(selTelLink + ", " + selDetailPanel); err != nil {
			// Panel never opened; nothing to dismiss.
			continue
		}

		s.scanPanel(page, sink)

		// Leave the page safe for the next click or navigation.
		page.PressEscape()
	}
}

func (s disclosureStrategy) scanPanel(page render.Page, sink Sink) {
	for _, link := range page.Query(selTelLink) {
		if sink.Full() {
			return
		}
		if href, ok := link.Attribute("href"); ok {
			if sink.Add(strings.TrimPrefix(href, "tel:")) {
				return
			}
		}
	}

	blob := page.Text(selDetailPanel)
	for _, m := range s.pattern.FindAllString(blob, -1) {
		if sink.Add(m) {
			return
		}
	}
}
