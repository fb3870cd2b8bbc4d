// Package render defines the page-renderer boundary consumed by the
// extraction pipeline, plus the headless-browser implementation. The core
// treats the renderer as an opaque capability: navigate a URL, query the
// rendered document, click, dismiss.
package render

import (
	"context"
	"errors"
	"fmt"
)

// Element is a reference to one rendered DOM element.
type Element interface {
	// Text returns the visible text of the element, or "" if it cannot
	// be read (detached node, navigation in flight).
	Text() string

	// Attribute returns the named attribute value and whether it is set.
	Attribute(name string) (string, bool)

	// Query returns descendant elements matching the CSS selector, or nil.
	Query(selector string) []Element

	// Click scrolls the element into view and simulates a click.
	Click() error
}

// Page is one rendered document. Not safe for concurrent use.
type Page interface {
	// Query returns all elements matching the CSS selector, or nil.
	Query(selector string) []Element

	// WaitFor blocks until an element matching the selector appears or the
	// selector timeout elapses.
	WaitFor(selector string) error

	// Text returns the visible text of the first element matching the
	// selector, or "" when there is no match.
	Text(selector string) string

	// PressEscape sends an Escape key press to dismiss any open panel.
	PressEscape()

	// Close releases the page. The renderer may be used for a subsequent
	// navigation afterwards.
	Close()
}

// Renderer navigates URLs and exposes the rendered document. A single
// renderer instance supports at most one active rendering session at a time;
// parallelism requires independent instances.
type Renderer interface {
	// Render navigates to the URL and returns the rendered page. A timed-out
	// or failed navigation returns a *NavigationError; callers treat that as
	// "page unavailable", not as a fatal condition.
	Render(ctx context.Context, url string) (Page, error)

	// Close shuts the renderer down.
	Close() error
}

// NavigationError signals that a page failed to render within the
// navigation timeout. It is a per-page condition, never fatal to a session.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("render: navigation failed for %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// IsNavigationError reports whether err is (or wraps) a NavigationError.
func IsNavigationError(err error) bool {
	var ne *NavigationError
	return errors.As(err, &ne)
}
