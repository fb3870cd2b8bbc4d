// Package collect drives page-by-page number discovery across localities:
// a per-locality pagination cursor with exhaustion detection, and a
// round-robin scheduler with session-wide deduplication.
package collect

// PageStride is the result offset distance between consecutive pages.
const PageStride = 20

// Cursor defaults. These thresholds are tunable operating points, not
// load-bearing constants.
const (
	DefaultNoProgressThreshold = 2
	DefaultMaxPages            = 30
	DefaultHardFailThreshold   = 2
)

// CursorOptions tunes exhaustion detection. Zero values use the defaults.
type CursorOptions struct {
	// NoProgressThreshold is how many consecutive pages may yield zero new
	// numbers before the locality is exhausted.
	NoProgressThreshold int
	// MaxPages is the hard cap on pages fetched per locality.
	MaxPages int
	// HardFailThreshold is how many consecutive navigation failures exhaust
	// the locality.
	HardFailThreshold int
}

func (o CursorOptions) withDefaults() CursorOptions {
	if o.NoProgressThreshold <= 0 {
		o.NoProgressThreshold = DefaultNoProgressThreshold
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.HardFailThreshold <= 0 {
		o.HardFailThreshold = DefaultHardFailThreshold
	}
	return o
}

// Cursor tracks pagination state for one locality. State is committed only
// after a page fetch fully completes (success or defined failure), never
// mid-fetch. Exhaustion is terminal for the session.
type Cursor struct {
	locality             string
	nextOffset           int
	pagesWithoutProgress int
	hardFails            int
	exhausted            bool
	opts                 CursorOptions
}

// NewCursor creates an active cursor at offset 0.
func NewCursor(locality string, opts CursorOptions) *Cursor {
	return &Cursor{locality: locality, opts: opts.withDefaults()}
}

// Locality returns the locality this cursor paginates.
func (c *Cursor) Locality() string { return c.locality }

// Offset returns the result offset of the next page to fetch. It is
// non-decreasing and advances by exactly PageStride per recorded fetch.
func (c *Cursor) Offset() int { return c.nextOffset }

// Exhausted reports whether no further pages will be fetched this session.
func (c *Cursor) Exhausted() bool { return c.exhausted }

// PagesWithoutProgress returns the current no-progress streak.
func (c *Cursor) PagesWithoutProgress() int { return c.pagesWithoutProgress }

// State returns "active" or "exhausted", for logging.
func (c *Cursor) State() string {
	if c.exhausted {
		return "exhausted"
	}
	return "active"
}

// RecordPage commits a completed page fetch that yielded newNumbers fresh
// numbers. The offset advances either way; a zero yield extends the
// no-progress streak.
func (c *Cursor) RecordPage(newNumbers int) {
	if c.exhausted {
		return
	}
	c.nextOffset += PageStride
	c.hardFails = 0
	if newNumbers > 0 {
		c.pagesWithoutProgress = 0
	} else {
		c.pagesWithoutProgress++
	}
	c.checkExhaustion()
}

// RecordFailure commits a transient navigation failure. A single failure is
// treated as a no-progress page; consecutive failures past the threshold
// exhaust the locality.
func (c *Cursor) RecordFailure() {
	if c.exhausted {
		return
	}
	c.nextOffset += PageStride
	c.hardFails++
	c.pagesWithoutProgress++
	if c.hardFails >= c.opts.HardFailThreshold {
		c.exhausted = true
		return
	}
	c.checkExhaustion()
}

func (c *Cursor) checkExhaustion() {
	if c.pagesWithoutProgress >= c.opts.NoProgressThreshold {
		c.exhausted = true
		return
	}
	if c.nextOffset >= c.opts.MaxPages*PageStride {
		c.exhausted = true
	}
}
