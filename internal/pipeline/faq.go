package pipeline

// FAQEntry is one cached question with its canned answer.
type FAQEntry struct {
	Question string
	Answer   string
	ImageURL string
}

// FAQ answers exact-match questions without classification or retrieval.
type FAQ struct {
	entries []FAQEntry
	answers map[string]string
}

// NewFAQ builds a FAQ from entries. Later duplicates override earlier ones.
func NewFAQ(entries []FAQEntry) FAQ {
	f := FAQ{answers: make(map[string]string, len(entries))}
	for _, e := range entries {
		if e.Question == "" {
			continue
		}
		if _, dup := f.answers[e.Question]; !dup {
			f.entries = append(f.entries, e)
		}
		f.answers[e.Question] = e.Answer
	}
	return f
}

// Lookup returns the canned answer of an exact question match.
func (f FAQ) Lookup(query string) (string, bool) {
	a, ok := f.answers[query]
	return a, ok
}

// Entries returns the distinct entries in declaration order.
func (f FAQ) Entries() []FAQEntry {
	out := make([]FAQEntry, len(f.entries))
	copy(out, f.entries)
	for i := range out {
		out[i].Answer = f.answers[out[i].Question]
	}
	return out
}

// Len returns the number of distinct questions.
func (f FAQ) Len() int { return len(f.entries) }
