package convergence

import (
	"context"

	"kotoba/internal/textnorm"
)

const terminalRune = '。'

// Truncate enforces a hard upper bound: the result ends with the terminal
// mark and is never longer than the target. Shorter text is accepted.
type Truncate struct{}

func (Truncate) Name() string { return StrategyTruncate }

func (Truncate) Converge(_ context.Context, in Input) (Result, error) {
	return strictResult(HardTruncate(in.Candidate, in.Target), in.Target, StrategyTruncate, 0), nil
}

// HardTruncate cuts text at the last terminal mark inside the first target
// characters. Without such a mark it keeps target-1 characters and appends one.
func HardTruncate(text string, target int) string {
	text = textnorm.Normalize(text)
	if text == "" || target <= 0 {
		return ""
	}
	text = textnorm.EnsureTerminal(text)
	runes := []rune(text)
	if len(runes) <= target {
		return text
	}
	cut := runes[:target]
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == terminalRune {
			return string(cut[:i+1])
		}
	}
	return string(cut[:target-1]) + textnorm.TerminalMark
}

func strictResult(text string, target int, strategy string, calls int) Result {
	res := measure(text)
	res.Strategy = strategy
	res.Iterations = calls
	res.SatisfiesLength = res.CharCount > 0 && res.CharCount <= target && res.EndsWithTerminalMark
	return res
}
