package termmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tm := TermMap{
		"Nanno":     "แนนโน๊ะ",
		"Yuri":      "ยูริ",
		"TK":        "ทีเค",
		"Principal": "ผอ.",
	}

	texts := []string{
		"Nanno transfers to a new school.",
		"Yuri watches from the hallway.",
		"This is just a regular line.",
	}

	result := Match(tm, texts)

	assert.Len(t, result.Matched, 2)
	assert.Equal(t, "แนนโน๊ะ", result.Matched["Nanno"])
	assert.Equal(t, "ยูริ", result.Matched["Yuri"])
	assert.NotContains(t, result.Matched, "TK")
	assert.NotContains(t, result.Matched, "Principal")
}

func TestMatch_EmptyInputs(t *testing.T) {
	assert.Empty(t, Match(TermMap{}, []string{"some text"}).Matched)
	assert.Empty(t, Match(TermMap{"hello": "world"}, nil).Matched)
}

func TestMatch_CaseSensitive(t *testing.T) {
	tm := TermMap{"Mak": "มาก"}

	// Proper nouns match exactly by case.
	assert.Empty(t, Match(tm, []string{"mak is here"}).Matched)
	assert.Len(t, Match(tm, []string{"Mak is here"}).Matched, 1)
}

func TestMatch_WordBoundary(t *testing.T) {
	tm := TermMap{"elf": "precious"}

	// Inside another word: no match.
	assert.Empty(t, Match(tm, []string{"She found herself alone."}).Matched)

	// Standalone, mid-sentence, leading, trailing: all match.
	assert.Len(t, Match(tm, []string{"The elf cast a spell."}).Matched, 1)
	assert.Len(t, Match(tm, []string{"elf warriors attacked"}).Matched, 1)
	assert.Len(t, Match(tm, []string{"She met an elf"}).Matched, 1)
}

func TestMatch_WordBoundary_NoTrailingBoundary(t *testing.T) {
	tm := TermMap{"Nak": "นาก"}

	assert.Empty(t, Match(tm, []string{"NakNakNak is a chant"}).Matched)
	assert.Len(t, Match(tm, []string{"Nak waits by the river"}).Matched, 1)
}

func TestMatch_WordBoundary_Punctuation(t *testing.T) {
	tm := TermMap{"Nanno": "แนนโน๊ะ"}

	for _, text := range []string{"Look, it's Nanno!", "(Nanno)", `"Nanno"`} {
		assert.Len(t, Match(tm, []string{text}).Matched, 1, text)
	}
}

func TestMatch_TermRepeatedAcrossTexts(t *testing.T) {
	tm := TermMap{"Yuri": "ยูริ"}

	result := Match(tm, []string{"Yuri here", "Yuri there"})
	assert.Len(t, result.Matched, 1)
}

func TestContainsWordFold(t *testing.T) {
	assert.True(t, ContainsWordFold("The Elf is here", "elf"))
	assert.True(t, ContainsWordFold("the elf is here", "Elf"))
	assert.False(t, ContainsWordFold("herself", "elf"))
	assert.False(t, ContainsWordFold("HERSELF", "elf"))
}

func TestMatcherFindTerms_ThaiSubstring(t *testing.T) {
	m := NewMatcher(TermMap{
		"ราคา":     "price",
		"ตลาดหุ้น": "stock market",
	})

	// Thai has no word delimiters, so substring containment applies.
	found := m.FindTerms("วันนี้ราคาในตลาดหุ้นขึ้นแรง")
	assert.Equal(t, []string{"ตลาดหุ้น", "ราคา"}, found)

	assert.Empty(t, m.FindTerms("ไม่มีศัพท์เฉพาะ"))
}

func TestMatcherHints(t *testing.T) {
	m := NewMatcher(TermMap{"ราคา": "price", "หุ้น": "stock"})

	hints := m.Hints([]string{"ราคา", "unknown"})
	assert.Equal(t, TermMap{"ราคา": "price"}, hints)
}
