package contextual

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pranot/segtrans/internal/termmap"
)

func TestAnalyzeQuestion(t *testing.T) {
	a := NewAnalyzer(nil, "")

	assert.True(t, a.Analyze("คุณไปไหนมา").IsQuestion)
	assert.True(t, a.Analyze("จริงไหม").IsQuestion)
	assert.True(t, a.Analyze("Is this real?").IsQuestion)
	assert.False(t, a.Analyze("วันนี้อากาศดี").IsQuestion)
}

func TestAnalyzeFigurative(t *testing.T) {
	a := NewAnalyzer(nil, "")

	assert.True(t, a.Analyze("ใจเธอเหมือนน้ำแข็ง").IsFigurative)
	assert.True(t, a.Analyze("ราวกับฝันไป").IsFigurative)
	assert.False(t, a.Analyze("ฉันกินข้าวแล้ว").IsFigurative)
}

func TestAnalyzeKeyTerms(t *testing.T) {
	matcher := termmap.NewMatcher(termmap.TermMap{"ตลาดหุ้น": "stock market"})
	a := NewAnalyzer(matcher, "finance")

	analysis := a.Analyze("ตลาดหุ้นวันนี้ผันผวน")
	assert.Equal(t, []string{"ตลาดหุ้น"}, analysis.KeyTerms)
	assert.Equal(t, "finance", analysis.Topic)

	// Without a matcher, key terms stay empty.
	bare := NewAnalyzer(nil, "")
	assert.Empty(t, bare.Analyze("ตลาดหุ้นวันนี้ผันผวน").KeyTerms)
}

func TestContextMap(t *testing.T) {
	analysis := Analysis{
		IsQuestion:   true,
		IsFigurative: true,
		KeyTerms:     []string{"a", "b"},
		Topic:        "trend",
	}

	m := analysis.ContextMap()
	assert.Equal(t, map[string]string{
		"question":   "true",
		"figurative": "true",
		"key_terms":  "a,b",
		"topic":      "trend",
	}, m)

	assert.Empty(t, Analysis{}.ContextMap())
}
