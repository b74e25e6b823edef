package convergence

import (
	"context"

	"kotoba/internal/llm"
	"kotoba/internal/prompt"
	"kotoba/internal/textnorm"
)

// Resize asks the generator to expand or trim the candidate until it lands
// within ±Tolerance of the target and ends with the terminal mark. The window
// is advisory: when iterations run out the last candidate is returned as-is.
type Resize struct {
	Gen            Generator
	Prompts        *prompt.Set
	Tolerance      int
	MaxIterations  int
	Temperature    float64
	MaxTokensRatio float64
	OnStep         func(Step)
}

func (r *Resize) Name() string { return StrategyResize }

func (r *Resize) Converge(ctx context.Context, in Input) (Result, error) {
	tolerance := r.Tolerance
	if tolerance < 0 {
		tolerance = 0
	}
	maxIter := r.MaxIterations
	if maxIter <= 0 {
		maxIter = 2
	}

	current := textnorm.Normalize(in.Candidate)
	calls := 0
	for i := 0; i < maxIter; i++ {
		if r.withinWindow(current, in.Target, tolerance) {
			return r.finish(current, in.Target, tolerance, calls), nil
		}
		msgs, err := r.Prompts.Resize(prompt.ResizeData{
			Text:      current,
			Target:    in.Target,
			Tolerance: tolerance,
			Tone:      in.Tone,
			Keywords:  in.Keywords,
		})
		if err != nil {
			return Result{}, err
		}
		raw, err := r.Gen.Invoke(ctx, llm.Request{
			Messages:    msgs,
			MaxTokens:   MaxTokens(in.Target, r.MaxTokensRatio),
			Temperature: r.Temperature,
		})
		if err != nil {
			return Result{}, err
		}
		calls++
		next := textnorm.Normalize(raw)
		if r.OnStep != nil {
			r.OnStep(Step{Strategy: StrategyResize, Iteration: calls, Before: textnorm.CanonicalLength(current), After: textnorm.CanonicalLength(next), Target: in.Target})
		}
		if next == "" {
			break
		}
		current = next
	}
	return r.finish(current, in.Target, tolerance, calls), nil
}

func (r *Resize) withinWindow(text string, target, tolerance int) bool {
	diff := target - textnorm.CanonicalLength(text)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance && textnorm.EndsWithTerminal(text)
}

func (r *Resize) finish(text string, target, tolerance, calls int) Result {
	res := measure(text)
	res.Strategy = StrategyResize
	res.Iterations = calls
	res.SatisfiesLength = r.withinWindow(text, target, tolerance)
	res.BestEffort = !res.SatisfiesLength
	return res
}
