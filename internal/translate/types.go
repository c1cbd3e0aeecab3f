package translate

import (
	"context"

	"github.com/pranot/segtrans/internal/route"
)

// MediaMeta carries background that sharpens translation prompts.
// All fields are optional.
type MediaMeta struct {
	Title         string
	OriginalTitle string
	Genre         []string
	Year          int
	Plot          string
}

// Result is one completed translation call.
type Result struct {
	Text         string
	Tier         route.Tier
	CostEstimate float64
}

// Translator turns one segment's text into the target language on the
// requested tier. Implementations must be safe for concurrent use;
// calls are individually retryable and individually failable.
type Translator interface {
	Translate(ctx context.Context, text string, context map[string]string, tier route.Tier) (Result, error)
}
