package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-extractor/internal/collect"
	"github.com/sells-group/lead-extractor/internal/extract"
	"github.com/sells-group/lead-extractor/internal/phone"
	"github.com/sells-group/lead-extractor/internal/pipeline"
	"github.com/sells-group/lead-extractor/internal/render"
	"github.com/sells-group/lead-extractor/internal/verify"
)

// newSession wires one collection session: its own renderer instance (the
// renderer is not safe for concurrent use, so sessions never share one),
// extraction cascade, scheduler, and verification client. The returned
// cleanup must be called when the session ends.
func newSession(category string, localities []string) (*pipeline.Orchestrator, func(), error) {
	renderer, err := render.NewRodRenderer(render.Config{
		NavigationTimeout: time.Duration(cfg.Render.NavTimeoutMs) * time.Millisecond,
		SelectorTimeout:   time.Duration(cfg.Render.SelTimeoutMs) * time.Millisecond,
		Headless:          cfg.Render.Headless,
		UserAgent:         cfg.Render.UserAgent,
		AcceptLanguage:    cfg.Render.AcceptLanguage,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "start renderer")
	}

	norm := phone.NewNormalizer(cfg.Collect.CountryCode)
	extractor := extract.NewExtractor(norm, cfg.Collect.MaxClicksPerPage)

	fetcher := collect.NewLocalSearchFetcher(renderer, extractor, category, collect.SearchConfig{
		BaseURL:  cfg.Collect.SearchBaseURL,
		Language: cfg.Collect.Language,
		Region:   cfg.Collect.Region,
	})

	scheduler := collect.NewScheduler(localities, fetcher, collect.Options{
		Cursor: collect.CursorOptions{
			NoProgressThreshold: cfg.Collect.NoProgressThreshold,
			MaxPages:            cfg.Collect.MaxPages,
			HardFailThreshold:   cfg.Collect.HardFailThreshold,
		},
		InterPageDelay: time.Duration(cfg.Collect.InterPageDelayMs) * time.Millisecond,
	})

	verifier := verify.New(verify.Config{
		Endpoint:    cfg.Verify.CheckURL,
		Token:       cfg.Verify.Token,
		ChunkSize:   cfg.Verify.ChunkSize,
		Concurrency: cfg.Verify.Concurrency,
		MaxAttempts: cfg.Verify.MaxAttempts,
		Timeout:     time.Duration(cfg.Verify.TimeoutSecs) * time.Second,
	}, norm)

	orch := pipeline.New(scheduler, verifier, pipeline.Config{
		BatchCollect: cfg.Collect.BatchCollect,
		OverCollect:  cfg.Collect.OverCollect,
	})

	cleanup := func() {
		_ = renderer.Close()
	}
	return orch, cleanup, nil
}
