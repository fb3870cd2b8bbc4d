package render

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config controls the headless browser renderer.
type Config struct {
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	Headless          bool
	UserAgent         string
	AcceptLanguage    string
}

// DefaultConfig returns the renderer defaults. The timeouts are deliberately
// short: a page that has not produced its results container within a few
// seconds will not produce it at all.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 11 * time.Second,
		SelectorTimeout:   6500 * time.Millisecond,
		Headless:          true,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		AcceptLanguage: "pt-BR",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = def.NavigationTimeout
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = def.SelectorTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = def.AcceptLanguage
	}
	return c
}

// blockedResources are resource types aborted on every page to keep
// navigation fast; only the document and scripts matter for extraction.
var blockedResources = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeMedia:      true,
}

// RodRenderer renders pages with a headless Chromium instance via go-rod.
// It is NOT safe for concurrent use: at most one rendering session may be
// active at a time. Run independent instances for parallelism.
type RodRenderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
}

// NewRodRenderer launches a headless browser. A launch failure here is the
// one fatal error of a collection session.
func NewRodRenderer(cfg Config) (*RodRenderer, error) {
	cfg = cfg.withDefaults()

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("lang", cfg.AcceptLanguage)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "render: launch browser")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "render: connect to browser")
	}

	return &RodRenderer{browser: browser, launcher: l, cfg: cfg}, nil
}

// Render navigates to the URL and waits for the document to load. Timeouts
// and navigation errors come back as *NavigationError.
func (r *RodRenderer) Render(ctx context.Context, url string) (Page, error) {
	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "render: create page")
	}
	page = page.Context(ctx)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      r.cfg.UserAgent,
		AcceptLanguage: r.cfg.AcceptLanguage,
	}); err != nil {
		zap.L().Debug("render: set user agent failed", zap.Error(err))
	}

	router := page.HijackRequests()
	err = router.Add("*", "", func(h *rod.Hijack) {
		if blockedResources[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		_ = page.Close()
		return nil, eris.Wrap(err, "render: install request filter")
	}
	go router.Run()

	nav := page.Timeout(r.cfg.NavigationTimeout)
	if err := nav.Navigate(url); err != nil {
		_ = router.Stop()
		_ = page.Close()
		return nil, &NavigationError{URL: url, Err: err}
	}
	if err := nav.WaitLoad(); err != nil {
		_ = router.Stop()
		_ = page.Close()
		return nil, &NavigationError{URL: url, Err: err}
	}

	return &rodPage{page: page, router: router, selTimeout: r.cfg.SelectorTimeout}, nil
}

// Close shuts the browser down and cleans up the launcher's user data dir.
func (r *RodRenderer) Close() error {
	err := r.browser.Close()
	r.launcher.Cleanup()
	if err != nil {
		return eris.Wrap(err, "render: close browser")
	}
	return nil
}

type rodPage struct {
	page       *rod.Page
	router     *rod.HijackRouter
	selTimeout time.Duration
}

func (p *rodPage) Query(selector string) []Element {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (p *rodPage) WaitFor(selector string) error {
	_, err := p.page.Timeout(p.selTimeout).Element(selector)
	if err != nil {
		return eris.Wrapf(err, "render: selector %q not found", selector)
	}
	return nil
}

func (p *rodPage) Text(selector string) string {
	els, err := p.page.Elements(selector)
	if err != nil || len(els) == 0 {
		return ""
	}
	text, err := els[0].Text()
	if err != nil {
		return ""
	}
	return text
}

func (p *rodPage) PressEscape() {
	if err := p.page.Keyboard.Press(input.Escape); err != nil {
		zap.L().Debug("render: escape press failed", zap.Error(err))
	}
}

func (p *rodPage) Close() {
	_ = p.router.Stop()
	_ = p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return text
}

func (e *rodElement) Attribute(name string) (string, bool) {
	val, err := e.el.Attribute(name)
	if err != nil || val == nil {
		return "", false
	}
	return *val, true
}

func (e *rodElement) Query(selector string) []Element {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (e *rodElement) Click() error {
	_ = e.el.ScrollIntoView()
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}
