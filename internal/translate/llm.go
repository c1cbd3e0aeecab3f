package translate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/llm"
	"github.com/pranot/segtrans/internal/route"
	"github.com/pranot/segtrans/internal/termmap"
	"github.com/pranot/segtrans/pkg/log"
)

// charsPerToken approximates tokenization for cost estimation when the
// provider omits usage counts.
const charsPerToken = 4

// tierPricing is the per-1K-token cost of one tier's model.
type tierPricing struct {
	model      string
	inputCost  float64
	outputCost float64
}

// llmTranslator translates single segments through an OpenAI-compatible
// API, selecting the model by tier and estimating cost from token usage.
type llmTranslator struct {
	client     *llm.Client
	tiers      map[route.Tier]tierPricing
	sourceLang string
	targetLang language.Tag
	media      MediaMeta
	hints      termmap.TermMap
}

// NewLLMTranslator wires the client against the configured tier models.
// hints may be nil when no terminology file exists.
func NewLLMTranslator(client *llm.Client, tiers config.TierConfig,
	sourceLang string, targetLang language.Tag, media MediaMeta, hints termmap.TermMap) Translator {
	return &llmTranslator{
		client: client,
		tiers: map[route.Tier]tierPricing{
			route.TierCheap: {
				model:      tiers.CheapModel,
				inputCost:  tiers.CheapInputCost,
				outputCost: tiers.CheapOutputCost,
			},
			route.TierExpensive: {
				model:      tiers.ExpensiveModel,
				inputCost:  tiers.ExpensiveInputCost,
				outputCost: tiers.ExpensiveOutputCost,
			},
		},
		sourceLang: sourceLang,
		targetLang: targetLang,
		media:      media,
		hints:      hints,
	}
}

func (t *llmTranslator) Translate(ctx context.Context, text string, context_ map[string]string, tier route.Tier) (Result, error) {
	pricing, ok := t.tiers[tier]
	if !ok {
		return Result{}, fmt.Errorf("unknown tier %q", tier)
	}

	opts := llm.NewChatCompletionOptions().
		WithModel(pricing.model).
		WithSystemPrompt(t.buildContextPrompt(context_))

	content, usage, err := t.client.SimpleChat(ctx, text, opts)
	if err != nil {
		return Result{}, fmt.Errorf("translate on tier %s: %w", tier, err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return Result{}, fmt.Errorf("translate on tier %s: empty response", tier)
	}

	t.verifyLanguage(content)

	return Result{
		Text:         content,
		Tier:         tier,
		CostEstimate: t.estimateCost(pricing, text, content, usage),
	}, nil
}

// estimateCost prefers the provider's token counts, falling back to a
// character-based approximation.
func (t *llmTranslator) estimateCost(pricing tierPricing, input, output string, usage llm.Usage) float64 {
	inTokens := float64(usage.PromptTokens)
	outTokens := float64(usage.CompletionTokens)
	if usage.TotalTokens == 0 {
		inTokens = float64(len(input)) / charsPerToken
		outTokens = float64(len(output)) / charsPerToken
	}
	return inTokens/1000*pricing.inputCost + outTokens/1000*pricing.outputCost
}

// verifyLanguage warns when the dominant detected language disagrees
// with the target. Detection on short lines is noisy, so mismatches
// are informational only.
func (t *llmTranslator) verifyLanguage(text string) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return
	}
	detected := info.Lang.Iso6391()
	base, _ := t.targetLang.Base()
	if detected != "" && detected != base.String() {
		log.Warn("Translation language %s differs from target %s", detected, base)
	}
}

// buildContextPrompt assembles the system prompt from media metadata,
// terminology hints, and the segment's analysis context.
func (t *llmTranslator) buildContextPrompt(context_ map[string]string) string {
	var prompt strings.Builder

	targetName := t.targetLang.String()
	prompt.WriteString("You are a professional subtitle translation expert. Translate the given line from " +
		t.sourceLang + " to " + targetName + ".\n\n")

	if t.media.Title != "" || t.media.Plot != "" {
		prompt.WriteString("=== MEDIA INFORMATION ===\n")
		if t.media.Title != "" {
			prompt.WriteString(fmt.Sprintf("Title: %s\n", t.media.Title))
		}
		if t.media.OriginalTitle != "" {
			prompt.WriteString(fmt.Sprintf("Original Title: %s\n", t.media.OriginalTitle))
		}
		if len(t.media.Genre) > 0 {
			prompt.WriteString(fmt.Sprintf("Genre: %s\n", strings.Join(t.media.Genre, ", ")))
		}
		if t.media.Year > 0 {
			prompt.WriteString(fmt.Sprintf("Year: %d\n", t.media.Year))
		}
		if t.media.Plot != "" {
			prompt.WriteString(fmt.Sprintf("Plot Summary: %s\n", t.media.Plot))
		}
	}

	if len(t.hints) > 0 {
		prompt.WriteString("\n=== TERMINOLOGY ===\n")
		prompt.WriteString("Use these fixed translations for known terms:\n")
		terms := make([]string, 0, len(t.hints))
		for term := range t.hints {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			prompt.WriteString(fmt.Sprintf("- %s => %s\n", term, t.hints[term]))
		}
	}

	if len(context_) > 0 {
		prompt.WriteString("\n=== SEGMENT CONTEXT ===\n")
		keys := make([]string, 0, len(context_))
		for k := range context_ {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", k, context_[k]))
		}
	}

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Return ONLY the translated line.\n")
	prompt.WriteString("Do not include any explanations, notes, or additional text.\n")

	return prompt.String()
}
