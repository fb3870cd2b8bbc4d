package collect

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-extractor/internal/phone"
)

// scriptedFetcher serves pre-baked pages keyed by locality and offset.
// Unscripted offsets yield empty pages.
type scriptedFetcher struct {
	pages map[string]map[int][]phone.CanonicalNumber
	errs  map[string]map[int]error
	calls []string
}

func (f *scriptedFetcher) FetchPage(_ context.Context, locality string, offset, limit int) ([]phone.CanonicalNumber, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s@%d", locality, offset))
	if err := f.errs[locality][offset]; err != nil {
		return nil, err
	}
	nums := f.pages[locality][offset]
	if len(nums) > limit {
		nums = nums[:limit]
	}
	return nums, nil
}

func nums(vals ...string) []phone.CanonicalNumber {
	out := make([]phone.CanonicalNumber, len(vals))
	for i, v := range vals {
		out[i] = phone.CanonicalNumber(v)
	}
	return out
}

func TestCollectBatch_DrainsTwoLocalities(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]map[int][]phone.CanonicalNumber{
		"Campinas": {
			0:  nums("+5519912340001", "+5519912340002"),
			20: nums("+5519912340003"),
		},
		"Jundiaí": {
			0:  nums("+5511912340004"),
			20: nums("+5511912340005"),
		},
	}}

	s := NewScheduler([]string{"Campinas", "Jundiaí"}, fetcher, Options{
		Cursor: CursorOptions{NoProgressThreshold: 1},
	})

	batch, allExhausted, err := s.CollectBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, allExhausted)
	assert.Len(t, batch, 5)

	// Each locality was paged at offsets 0 and 20 before the empty page at 40
	// exhausted it.
	offsets := map[string]map[int]bool{}
	for _, c := range batch {
		if offsets[c.Locality] == nil {
			offsets[c.Locality] = map[int]bool{}
		}
		offsets[c.Locality][c.Offset] = true
	}
	assert.Equal(t, map[int]bool{0: true, 20: true}, offsets["Campinas"])
	assert.Equal(t, map[int]bool{0: true, 20: true}, offsets["Jundiaí"])
}

func TestCollectBatch_RoundRobinInterleaves(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]map[int][]phone.CanonicalNumber{
		"A": {0: nums("+5519912340001")},
		"B": {0: nums("+5511912340002")},
	}}

	s := NewScheduler([]string{"A", "B"}, fetcher, Options{
		Cursor: CursorOptions{NoProgressThreshold: 1},
	})

	_, _, err := s.CollectBatch(context.Background(), 100)
	require.NoError(t, err)

	// First pass visits every locality once before any revisit.
	require.GreaterOrEqual(t, len(fetcher.calls), 2)
	assert.Equal(t, "A@0", fetcher.calls[0])
	assert.Equal(t, "B@0", fetcher.calls[1])
}

func TestCollectBatch_GlobalDedupAcrossBatches(t *testing.T) {
	shared := "+5519912340001"
	fetcher := &scriptedFetcher{pages: map[string]map[int][]phone.CanonicalNumber{
		"A": {0: nums(shared, "+5519912340002"), 20: nums(shared, "+5519912340003")},
	}}

	s := NewScheduler([]string{"A"}, fetcher, Options{
		Cursor: CursorOptions{NoProgressThreshold: 1},
	})

	first, _, err := s.CollectBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, nums(shared, "+5519912340002"), candidateNumbers(first))

	second, _, err := s.CollectBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, nums("+5519912340003"), candidateNumbers(second))
	assert.Equal(t, 3, s.UniqueCount())
}

func TestCollectBatch_StopsAtWant(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[string]map[int][]phone.CanonicalNumber{
		"A": {0: nums("+5519912340001", "+5519912340002", "+5519912340003")},
	}}

	s := NewScheduler([]string{"A"}, fetcher, Options{})

	batch, allExhausted, err := s.CollectBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.False(t, allExhausted)
	assert.Equal(t, 1, s.PagesFetched())
}

func TestCollectBatch_FailuresExhaustLocality(t *testing.T) {
	boom := errors.New("navigation timeout")
	fetcher := &scriptedFetcher{
		pages: map[string]map[int][]phone.CanonicalNumber{},
		errs: map[string]map[int]error{
			"A": {0: boom, 20: boom},
		},
	}

	s := NewScheduler([]string{"A"}, fetcher, Options{
		Cursor: CursorOptions{HardFailThreshold: 2, NoProgressThreshold: 5},
	})

	batch, allExhausted, err := s.CollectBatch(context.Background(), 10)
	require.NoError(t, err, "per-page failures are absorbed, not returned")
	assert.Empty(t, batch)
	assert.True(t, allExhausted)
	assert.Equal(t, 2, s.PagesFetched())
}

func TestCollectBatch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &scriptedFetcher{pages: map[string]map[int][]phone.CanonicalNumber{
		"A": {0: nums("+5519912340001")},
	}}
	s := NewScheduler([]string{"A"}, fetcher, Options{})

	_, _, err := s.CollectBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.calls)
}

func TestCollectBatch_ZeroWant(t *testing.T) {
	fetcher := &scriptedFetcher{}
	s := NewScheduler([]string{"A"}, fetcher, Options{})

	batch, allExhausted, err := s.CollectBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, batch)
	assert.False(t, allExhausted)
}

func candidateNumbers(batch []Candidate) []phone.CanonicalNumber {
	out := make([]phone.CanonicalNumber, len(batch))
	for i, c := range batch {
		out[i] = c.Number
	}
	return out
}
