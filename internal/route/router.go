package route

import (
	"strings"
	"unicode/utf8"

	"github.com/pranot/segtrans/internal/contextual"
)

// Tier names a processing path with its own cost/quality tradeoff.
type Tier string

const (
	TierCheap     Tier = "cheap"
	TierExpensive Tier = "expensive"
)

// hardPatterns are analogy and hypothetical markers that reliably
// predict translation difficulty.
var hardPatterns = []string{
	"เหมือนกับ", "อุปมา", "สมมติว่า", "ยกตัวอย่าง",
}

// Thresholds hold the routing knobs. The ladder cutoffs are policy,
// not correctness; the defaults keep mid-range scores on the cheap
// tier for cost reasons.
type Thresholds struct {
	LengthThreshold  int
	KeyTermThreshold int
	CheapMax         float64
	ExpensiveMin     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LengthThreshold:  120,
		KeyTermThreshold: 2,
		CheapMax:         0.7,
		ExpensiveMin:     0.7,
	}
}

// Router scores segments and selects tiers. Pure and deterministic
// given its inputs; it holds no state beyond the thresholds.
type Router struct {
	t Thresholds
}

func NewRouter(t Thresholds) *Router {
	if t.LengthThreshold <= 0 {
		t.LengthThreshold = DefaultThresholds().LengthThreshold
	}
	if t.KeyTermThreshold <= 0 {
		t.KeyTermThreshold = DefaultThresholds().KeyTermThreshold
	}
	if t.ExpensiveMin == 0 {
		t.ExpensiveMin = DefaultThresholds().ExpensiveMin
	}
	if t.CheapMax == 0 {
		t.CheapMax = t.ExpensiveMin
	}
	return &Router{t: t}
}

// Score weighs the complexity signals of one segment and clamps the
// sum to [0,1].
func (r *Router) Score(text string, analysis contextual.Analysis) float64 {
	score := 0.0

	if utf8.RuneCountInString(text) > r.t.LengthThreshold {
		score += 0.2
	}
	if analysis.IsFigurative {
		score += 0.3
	}
	if len(analysis.KeyTerms) > r.t.KeyTermThreshold {
		score += 0.2
	}
	for _, pattern := range hardPatterns {
		if strings.Contains(text, pattern) {
			score += 0.2
			break
		}
	}
	if analysis.IsQuestion {
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// SelectTier applies the threshold ladder, then the figurative
// override: figurative segments scoring above 0.5 always go expensive.
func (r *Router) SelectTier(score float64, analysis contextual.Analysis) Tier {
	if analysis.IsFigurative && score > 0.5 {
		return TierExpensive
	}
	if score >= r.t.ExpensiveMin {
		return TierExpensive
	}
	return TierCheap
}

// Route is the combined scoring and selection step.
func (r *Router) Route(text string, analysis contextual.Analysis) (Tier, float64) {
	score := r.Score(text, analysis)
	return r.SelectTier(score, analysis), score
}
