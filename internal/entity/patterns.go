package entity

// LearnedPatternSet is the persisted learning artifact. It is rewritten
// wholesale by each learning cycle and read-only to extractors during a run:
// a field's learned pattern disappears again if its correction count falls
// below threshold in a later cycle.
type LearnedPatternSet struct {
	RegexPatterns map[string]string `json:"regex_patterns"`
	NLPTerms      []string          `json:"nlp_terms"`
	ItemPatterns  map[string]string `json:"item_patterns"`
}

// EmptyPatternSet returns a usable zero artifact. A corrupt or missing
// artifact file degrades to this.
func EmptyPatternSet() LearnedPatternSet {
	return LearnedPatternSet{
		RegexPatterns: map[string]string{},
		NLPTerms:      []string{},
		ItemPatterns:  map[string]string{},
	}
}

// HasTerm reports whether a term is already in the learned NLP term list.
func (p LearnedPatternSet) HasTerm(term string) bool {
	for _, t := range p.NLPTerms {
		if t == term {
			return true
		}
	}
	return false
}
