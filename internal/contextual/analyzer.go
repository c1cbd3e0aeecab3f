package contextual

import (
	"strings"

	"github.com/pranot/segtrans/internal/termmap"
)

// Analysis captures the per-segment signals that drive tier routing
// and prompt assembly.
type Analysis struct {
	IsQuestion   bool
	IsFigurative bool
	KeyTerms     []string
	Topic        string
}

// ContextMap renders the analysis as the flat string map used for
// cache keys and prompt hints. Key order does not matter to callers;
// the cache canonicalizes it.
func (a Analysis) ContextMap() map[string]string {
	m := make(map[string]string, 4)
	if a.IsQuestion {
		m["question"] = "true"
	}
	if a.IsFigurative {
		m["figurative"] = "true"
	}
	if len(a.KeyTerms) > 0 {
		m["key_terms"] = strings.Join(a.KeyTerms, ",")
	}
	if a.Topic != "" {
		m["topic"] = a.Topic
	}
	return m
}

// figurativeMarkers are comparison and metaphor cues. Thai first since
// that is the primary source language, with a few English fallbacks
// for mixed-language dialogue.
var figurativeMarkers = []string{
	"เหมือน", "ดั่ง", "ราวกับ", "เปรียบเสมือน", "อุปมา", "เปรียบเหมือน",
	"like a", "as if", "as though",
}

// questionMarkers are Thai sentence-final question particles and
// interrogatives. Thai has no question mark convention, so the
// particles carry the signal.
var questionMarkers = []string{
	"ไหม", "มั้ย", "หรือเปล่า", "หรือไม่", "ทำไม", "อะไร", "ที่ไหน",
	"เมื่อไหร่", "อย่างไร", "ยังไง", "ใคร",
}

// Analyzer derives routing signals from segment text. Pure lookup,
// no model calls.
type Analyzer struct {
	matcher *termmap.Matcher
	topic   string
}

// NewAnalyzer builds an analyzer over an optional terminology matcher.
// A nil matcher means key-term extraction always returns empty.
func NewAnalyzer(matcher *termmap.Matcher, topic string) *Analyzer {
	return &Analyzer{matcher: matcher, topic: topic}
}

// Analyze inspects one segment's text. Deterministic given its inputs.
func (a *Analyzer) Analyze(text string) Analysis {
	analysis := Analysis{
		IsQuestion:   isQuestion(text),
		IsFigurative: isFigurative(text),
		Topic:        a.topic,
	}
	if a.matcher != nil {
		analysis.KeyTerms = a.matcher.FindTerms(text)
	}
	return analysis
}

func isFigurative(text string) bool {
	for _, marker := range figurativeMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func isQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	for _, marker := range questionMarkers {
		if strings.Contains(trimmed, marker) {
			return true
		}
	}
	return false
}
