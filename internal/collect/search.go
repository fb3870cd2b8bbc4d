package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-extractor/internal/extract"
	"github.com/sells-group/lead-extractor/internal/phone"
	"github.com/sells-group/lead-extractor/internal/render"
)

// SearchConfig points the fetcher at a local-results search endpoint.
type SearchConfig struct {
	BaseURL  string // default "https://www.google.com/search"
	Language string // hl parameter, default "pt-BR"
	Region   string // gl parameter, default "BR"
}

func (c SearchConfig) withDefaults() SearchConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.google.com/search"
	}
	if c.Language == "" {
		c.Language = "pt-BR"
	}
	if c.Region == "" {
		c.Region = "BR"
	}
	return c
}

// consent dialog affordances, by stable id and by visible label.
var (
	consentButtonSel = "#L2AGLb"
	consentLabels    = []string{"aceitar tudo", "concordo", "i agree", "accept all"}
)

// LocalSearchFetcher implements PageFetcher against a search engine's
// local-results listing, one rendered page per call. It drives a single
// renderer instance and must therefore be called from one goroutine at a
// time.
type LocalSearchFetcher struct {
	renderer  render.Renderer
	extractor *extract.Extractor
	category  string
	cfg       SearchConfig
}

// NewLocalSearchFetcher builds a fetcher for one business category.
func NewLocalSearchFetcher(renderer render.Renderer, extractor *extract.Extractor, category string, cfg SearchConfig) *LocalSearchFetcher {
	return &LocalSearchFetcher{
		renderer:  renderer,
		extractor: extractor,
		category:  category,
		cfg:       cfg.withDefaults(),
	}
}

// FetchPage renders the results page for "<category> <locality>" at the
// given offset and extracts up to limit numbers. A failed navigation
// propagates as an error; a page without a results container yields an
// empty result.
func (f *LocalSearchFetcher) FetchPage(ctx context.Context, locality string, offset, limit int) ([]phone.CanonicalNumber, error) {
	pageURL := f.buildURL(locality, offset)

	page, err := f.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	dismissConsent(page)

	if err := page.WaitFor(extract.SelResults); err != nil {
		zap.L().Debug("collect: results container never appeared",
			zap.String("locality", locality),
			zap.Int("offset", offset),
		)
		return nil, nil
	}

	return f.extractor.ExtractPage(ctx, page, limit), nil
}

func (f *LocalSearchFetcher) buildURL(locality string, offset int) string {
	q := url.QueryEscape(f.category + " " + locality)
	return fmt.Sprintf("%s?tbm=lcl&q=%s&hl=%s&gl=%s&start=%d",
		f.cfg.BaseURL, q, f.cfg.Language, f.cfg.Region, offset)
}

// dismissConsent clicks through the consent interstitial when present.
// Failure to dismiss is harmless: the results wait below will simply time
// out and the page counts as no-progress.
func dismissConsent(page render.Page) {
	if els := page.Query(consentButtonSel); len(els) > 0 {
		if err := els[0].Click(); err == nil {
			return
		}
	}
	for i, btn := range page.Query("button") {
		if i >= 20 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(btn.Text()))
		for _, want := range consentLabels {
			if strings.Contains(label, want) {
				_ = btn.Click()
				return
			}
		}
	}
}

// ParseLocalities splits a comma-separated localities parameter into a
// cleaned, order-preserving, deduplicated list. Names are NFC-normalized so
// that visually identical spellings count as one locality.
func ParseLocalities(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		loc := norm.NFC.String(strings.TrimSpace(part))
		if loc == "" {
			continue
		}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	return out
}
