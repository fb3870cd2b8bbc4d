package collect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursor_OffsetAdvancesByStride(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{})

	assert.Equal(t, 0, c.Offset())
	c.RecordPage(5)
	assert.Equal(t, PageStride, c.Offset())
	c.RecordPage(3)
	assert.Equal(t, 2*PageStride, c.Offset())
	c.RecordFailure()
	assert.Equal(t, 3*PageStride, c.Offset())
}

func TestCursor_ProgressResetsStreak(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{NoProgressThreshold: 2})

	c.RecordPage(0)
	assert.Equal(t, 1, c.PagesWithoutProgress())
	assert.False(t, c.Exhausted())

	c.RecordPage(4)
	assert.Equal(t, 0, c.PagesWithoutProgress())
	assert.False(t, c.Exhausted())
}

func TestCursor_ExhaustsOnNoProgressStreak(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{NoProgressThreshold: 2})

	c.RecordPage(0)
	c.RecordPage(0)
	assert.True(t, c.Exhausted())
	assert.Equal(t, "exhausted", c.State())
}

func TestCursor_ExhaustsAtPageCap(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{MaxPages: 3})

	c.RecordPage(10)
	c.RecordPage(10)
	assert.False(t, c.Exhausted())
	c.RecordPage(10)
	assert.True(t, c.Exhausted())
	assert.Equal(t, 3*PageStride, c.Offset())
}

func TestCursor_ExhaustsOnConsecutiveFailures(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{HardFailThreshold: 2, NoProgressThreshold: 5})

	c.RecordFailure()
	assert.False(t, c.Exhausted())
	c.RecordFailure()
	assert.True(t, c.Exhausted())
}

func TestCursor_SuccessResetsFailureCount(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{HardFailThreshold: 2, NoProgressThreshold: 5})

	c.RecordFailure()
	c.RecordPage(3)
	c.RecordFailure()
	assert.False(t, c.Exhausted(), "non-consecutive failures must not exhaust")
}

func TestCursor_ExhaustedIsTerminal(t *testing.T) {
	c := NewCursor("Campinas", CursorOptions{NoProgressThreshold: 1})

	c.RecordPage(0)
	assert.True(t, c.Exhausted())

	offset := c.Offset()
	c.RecordPage(10)
	c.RecordFailure()
	assert.True(t, c.Exhausted())
	assert.Equal(t, offset, c.Offset(), "terminal cursor must not advance")
}

func TestCursorOptions_Defaults(t *testing.T) {
	o := CursorOptions{}.withDefaults()
	assert.Equal(t, DefaultNoProgressThreshold, o.NoProgressThreshold)
	assert.Equal(t, DefaultMaxPages, o.MaxPages)
	assert.Equal(t, DefaultHardFailThreshold, o.HardFailThreshold)
}
