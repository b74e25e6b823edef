package convergence

import "kotoba/internal/textnorm"

// Result is the final artifact of one generation. CharCount always equals
// textnorm.CanonicalLength(Text); build it through measure, never by hand.
type Result struct {
	Text                 string
	CharCount            int
	SatisfiesLength      bool
	EndsWithTerminalMark bool
	Strategy             string
	Iterations           int
	// BestEffort is set when the strategy ran out of iterations before the
	// length window was reached. The text is still returned.
	BestEffort bool
	// MissingKeywords lists requested keywords absent from Text.
	MissingKeywords []string
	// DuplicateKeywords lists requested keywords used more than once.
	DuplicateKeywords []string
}

func measure(text string) Result {
	return Result{
		Text:                 text,
		CharCount:            textnorm.CanonicalLength(text),
		EndsWithTerminalMark: textnorm.EndsWithTerminal(text),
	}
}

// WithText returns a copy of r carrying text, with the derived fields recomputed.
func (r Result) WithText(text string) Result {
	m := measure(text)
	r.Text = m.Text
	r.CharCount = m.CharCount
	r.EndsWithTerminalMark = m.EndsWithTerminalMark
	return r
}

// Consistent reports whether CharCount still matches Text.
func (r Result) Consistent() bool {
	return r.CharCount == textnorm.CanonicalLength(r.Text) &&
		r.EndsWithTerminalMark == textnorm.EndsWithTerminal(r.Text)
}

// CheckKeywords records which keywords are absent from the text and which
// appear more than once. Each keyword is expected exactly once.
func (r Result) CheckKeywords(keywords []string) Result {
	r.MissingKeywords = nil
	r.DuplicateKeywords = nil
	for _, k := range keywords {
		switch n := textnorm.CountOccurrences(r.Text, k); {
		case n == 0:
			r.MissingKeywords = append(r.MissingKeywords, k)
		case n > 1:
			r.DuplicateKeywords = append(r.DuplicateKeywords, k)
		}
	}
	return r
}
