package convergence

import (
	"context"
	"strings"

	"kotoba/internal/llm"
	"kotoba/internal/prompt"
	"kotoba/internal/textnorm"
)

// TailRepair rewrites only the last sentence when the candidate overshoots
// the target by more than Slack, keeping the head sentences byte-for-byte.
// HardTruncate runs afterwards so the strict bound still holds.
type TailRepair struct {
	Gen         Generator
	Prompts     *prompt.Set
	Slack       int
	Temperature float64
	MaxTokens   int
	OnStep      func(Step)
}

func (t *TailRepair) Name() string { return StrategyTailRepair }

func (t *TailRepair) Converge(ctx context.Context, in Input) (Result, error) {
	slack := t.Slack
	if slack < 0 {
		slack = 0
	}
	current := textnorm.Normalize(in.Candidate)
	sentences := textnorm.SplitSentences(current)
	calls := 0

	if textnorm.CanonicalLength(current) > in.Target+slack && len(sentences) >= 2 {
		head := strings.Join(sentences[:len(sentences)-1], "")
		tail := sentences[len(sentences)-1]
		msgs, err := t.Prompts.Tail(prompt.TailData{
			Head:     head,
			Tail:     tail,
			Target:   in.Target,
			Tone:     in.Tone,
			Keywords: in.Keywords,
		})
		if err != nil {
			return Result{}, err
		}
		maxTokens := t.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 200
		}
		raw, err := t.Gen.Invoke(ctx, llm.Request{Messages: msgs, MaxTokens: maxTokens, Temperature: t.Temperature})
		if err != nil {
			return Result{}, err
		}
		calls++
		newTail := strings.TrimPrefix(textnorm.Normalize(raw), head)
		if newTail != "" {
			repaired := head + newTail
			if t.OnStep != nil {
				t.OnStep(Step{Strategy: StrategyTailRepair, Iteration: calls, Before: textnorm.CanonicalLength(current), After: textnorm.CanonicalLength(repaired), Target: in.Target})
			}
			current = repaired
		}
	}
	return strictResult(HardTruncate(current, in.Target), in.Target, StrategyTailRepair, calls), nil
}
