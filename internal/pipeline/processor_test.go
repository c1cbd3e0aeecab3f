package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranot/segtrans/internal/cache"
	"github.com/pranot/segtrans/internal/checkpoint"
	"github.com/pranot/segtrans/internal/contextual"
	"github.com/pranot/segtrans/internal/route"
	"github.com/pranot/segtrans/internal/segment"
	"github.com/pranot/segtrans/internal/termmap"
	"github.com/pranot/segtrans/internal/translate"
)

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTranslator) Translate(_ context.Context, text string, _ map[string]string, tier route.Tier) (translate.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return translate.Result{Text: "translated: " + text, Tier: tier, CostEstimate: 0.002}, nil
}

func newTranslateProcessor(t *testing.T, translator translate.Translator) *TranslateProcessor {
	t.Helper()
	analyzer := contextual.NewAnalyzer(termmap.NewMatcher(termmap.TermMap{}), "drama")
	router := route.NewRouter(route.DefaultThresholds())
	resultCache := cache.Load(filepath.Join(t.TempDir(), "cache.json"), 10)
	return NewTranslateProcessor(analyzer, router, resultCache, translator)
}

func TestTranslateProcessorCachesRepeatedLines(t *testing.T) {
	translator := &fakeTranslator{}
	proc := newTranslateProcessor(t, translator)

	seg := segment.Segment{ID: 0, StartTime: 0, EndTime: 1, Text: "ราคาขึ้น", Confidence: 0.9}
	first, err := proc.Process(context.Background(), seg)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "translated: ราคาขึ้น", first.Segment.Text)
	assert.InDelta(t, 0.002, first.Cost, 1e-9)

	repeat := segment.Segment{ID: 7, StartTime: 7, EndTime: 8, Text: "ราคาขึ้น", Confidence: 0.9}
	second, err := proc.Process(context.Background(), repeat)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "translated: ราคาขึ้น", second.Segment.Text)
	assert.Zero(t, second.Cost, "a cache hit must not be charged again")
	assert.Equal(t, 7, second.Segment.ID, "timing identity belongs to the segment, not the cache entry")

	assert.Equal(t, 1, translator.calls)
}

func TestOrchestratorChargesRepeatedLineOnce(t *testing.T) {
	store, batcher, _ := newTestStores(t, 10)
	translator := &fakeTranslator{}
	proc := newTranslateProcessor(t, translator)

	// Two workers race on the same line; whichever path resolves it
	// (shared flight or stored entry), the spend lands exactly once.
	segs := []segment.Segment{
		{ID: 0, StartTime: 0, EndTime: 1, Text: "ราคาขึ้น", Confidence: 0.9},
		{ID: 1, StartTime: 1, EndTime: 2, Text: "ราคาขึ้น", Confidence: 0.9},
	}
	orch := New(Config{
		JobID:              "job1",
		Stage:              checkpoint.StageTranslate,
		Workers:            2,
		CheckpointInterval: 10,
	}, store, batcher, proc)

	report, err := orch.Run(context.Background(), segs)
	require.NoError(t, err)

	assert.Equal(t, 1, translator.calls)
	assert.Equal(t, 1, report.Stats.CacheHits)
	assert.InDelta(t, 0.002, report.Stats.CostEstimate, 1e-9)
	require.Len(t, report.Segments, 2)
	assert.Equal(t, "translated: ราคาขึ้น", report.Segments[1].Text)
}

func TestTranslateProcessorRoutesFigurativeToExpensive(t *testing.T) {
	translator := &fakeTranslator{}
	matcher := termmap.NewMatcher(termmap.TermMap{
		"ชีวิต":   "life",
		"ความฝัน": "dream",
		"ตื่น":    "wake",
	})
	analyzer := contextual.NewAnalyzer(matcher, "drama")
	router := route.NewRouter(route.DefaultThresholds())
	resultCache := cache.Load(filepath.Join(t.TempDir(), "cache.json"), 10)
	proc := NewTranslateProcessor(analyzer, router, resultCache, translator)

	// Figurative marker, a hard analogy pattern, and three key terms
	// push the score past the expensive cutoff.
	seg := segment.Segment{
		ID: 0, StartTime: 0, EndTime: 2,
		Text:       "ชีวิตเหมือนกับความฝัน ราวกับว่าไม่เคยตื่น",
		Confidence: 0.9,
	}
	out, err := proc.Process(context.Background(), seg)
	require.NoError(t, err)
	assert.Equal(t, route.TierExpensive, out.Tier)
}

func TestPassthroughProcessorKeepsSegment(t *testing.T) {
	seg := segment.Segment{ID: 3, StartTime: 3, EndTime: 4, Text: "สวัสดี", Confidence: 0.8}
	out, err := PassthroughProcessor{}.Process(context.Background(), seg)
	require.NoError(t, err)
	assert.Equal(t, seg, out.Segment)
	assert.False(t, out.CacheHit)
}
