package termmap

// TermMap is a glossary of fixed translations, keyed by the source
// language term.
type TermMap map[string]string

// MatchResult carries the glossary subset found in a batch of lines.
type MatchResult struct {
	Matched TermMap
}
