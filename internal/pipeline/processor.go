package pipeline

import (
	"context"
	"fmt"

	"github.com/pranot/segtrans/internal/cache"
	"github.com/pranot/segtrans/internal/contextual"
	"github.com/pranot/segtrans/internal/route"
	"github.com/pranot/segtrans/internal/segment"
	"github.com/pranot/segtrans/internal/translate"
)

// TranslateProcessor is the translate-stage Processor: it analyzes a
// segment's text, routes it to a tier, and resolves the translation
// through the cache so repeated lines are charged once.
type TranslateProcessor struct {
	analyzer   *contextual.Analyzer
	router     *route.Router
	cache      *cache.Cache
	translator translate.Translator
}

func NewTranslateProcessor(analyzer *contextual.Analyzer, router *route.Router,
	resultCache *cache.Cache, translator translate.Translator) *TranslateProcessor {
	return &TranslateProcessor{
		analyzer:   analyzer,
		router:     router,
		cache:      resultCache,
		translator: translator,
	}
}

func (p *TranslateProcessor) Process(ctx context.Context, seg segment.Segment) (Outcome, error) {
	analysis := p.analyzer.Analyze(seg.Text)
	tier, _ := p.router.Route(seg.Text, analysis)
	segContext := analysis.ContextMap()

	key := cache.Key(seg.Text, segContext, string(tier))
	entry, hit, err := p.cache.GetOrCompute(key, func() (cache.Entry, error) {
		result, err := p.translator.Translate(ctx, seg.Text, segContext, tier)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{
			Output:       result.Text,
			Tier:         string(result.Tier),
			CostEstimate: result.CostEstimate,
		}, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("translate segment %d: %w", seg.ID, err)
	}

	out := seg
	out.Text = entry.Output

	cost := entry.CostEstimate
	if hit {
		// The spend already happened when the entry was first computed.
		cost = 0
	}
	return Outcome{
		Segment:  out,
		Tier:     route.Tier(entry.Tier),
		Cost:     cost,
		CacheHit: hit,
	}, nil
}

// PassthroughProcessor is the transcribe-stage Processor. Transcription
// produces whole segments up front; orchestrating them through the
// pipeline buys the same batching, checkpointing, and resume behavior
// as the translate stage without reprocessing anything.
type PassthroughProcessor struct{}

func (PassthroughProcessor) Process(_ context.Context, seg segment.Segment) (Outcome, error) {
	return Outcome{Segment: seg}, nil
}
