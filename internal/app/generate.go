package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kotoba/internal/config"
	"kotoba/internal/convergence"
	"kotoba/internal/ingest"
	"kotoba/internal/llm"
	"kotoba/internal/logging"
	"kotoba/internal/prompt"
	"kotoba/internal/textnorm"
)

var (
	ErrEmptySource     = errors.New("原稿を入力してください")
	ErrEmptyGeneration = errors.New("広告文を生成できませんでした（応答が空です）")
)

// Request is one generation: a source document and its constraints.
type Request struct {
	Source   ingest.Document
	Target   int
	Tone     prompt.Tone
	Keywords []string
	// Input names the request in log events.
	Input string
}

// Pipeline runs normalize → instruction → generation → normalize →
// convergence for a single request. It holds no per-request state.
type Pipeline struct {
	Gen               convergence.Generator
	Prompts           *prompt.Set
	Strategy          convergence.Strategy
	Logger            *logging.Logger
	Temperature       float64
	Headroom          int
	MaxTokensRatio    float64
	ValidationRetries int
	MinTarget         int
	MaxTarget         int
}

// NewPipeline wires the configured convergence strategy to gen.
func NewPipeline(cfg *config.Config, gen convergence.Generator, prompts *prompt.Set, logger *logging.Logger) (*Pipeline, error) {
	conv := cfg.Convergence
	strategy, err := convergence.New(convergence.Config{
		Strategy:          conv.Strategy,
		Tolerance:         conv.WindowTolerance(),
		MaxIterations:     conv.MaxIterations,
		AdjustTemperature: conv.AdjustTemperature,
		TailSlack:         conv.TailSlack,
		TailMaxTokens:     conv.TailMaxTokens,
		MaxTokensRatio:    conv.MaxTokensRatio,
		OnStep: func(s convergence.Step) {
			step := "resize"
			if s.Strategy == convergence.StrategyTailRepair {
				step = "tail"
			}
			logger.Emit(logging.Event{Level: "debug", Event: "convergence_step", Step: step, Strategy: s.Strategy, Iteration: s.Iteration, Chars: s.After, Target: s.Target})
		},
	}, gen, prompts)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Gen:               gen,
		Prompts:           prompts,
		Strategy:          strategy,
		Logger:            logger,
		Temperature:       cfg.Generation.SamplingTemperature(),
		Headroom:          conv.FirstPassHeadroom(),
		MaxTokensRatio:    conv.MaxTokensRatio,
		ValidationRetries: cfg.Generation.ValidationRetries,
		MinTarget:         cfg.Target.Min,
		MaxTarget:         cfg.Target.Max,
	}, nil
}

func (p *Pipeline) Generate(ctx context.Context, req Request) (convergence.Result, error) {
	source := textnorm.Normalize(req.Source.Text)
	if source == "" {
		return convergence.Result{}, ErrEmptySource
	}
	if req.Target <= 0 || (p.MinTarget > 0 && req.Target < p.MinTarget) || (p.MaxTarget > 0 && req.Target > p.MaxTarget) {
		return convergence.Result{}, fmt.Errorf("文字数は %d〜%d の範囲で指定してください（%d）", p.MinTarget, p.MaxTarget, req.Target)
	}
	keywords := dedupe(req.Keywords)
	start := time.Now()

	candidate, err := p.firstPass(ctx, req, source, keywords)
	if err != nil {
		return convergence.Result{}, err
	}

	res, err := p.Strategy.Converge(ctx, convergence.Input{
		Candidate: candidate,
		Target:    req.Target,
		Tone:      req.Tone,
		Keywords:  keywords,
	})
	if err != nil {
		return convergence.Result{}, err
	}
	res = res.CheckKeywords(keywords)
	if len(res.MissingKeywords) > 0 {
		p.Logger.Emit(logging.Event{Level: "warn", Event: "keyword_missing", Input: req.Input, Error: strings.Join(res.MissingKeywords, "、")})
	}
	if len(res.DuplicateKeywords) > 0 {
		p.Logger.Emit(logging.Event{Level: "warn", Event: "keyword_duplicate", Input: req.Input, Error: strings.Join(res.DuplicateKeywords, "、")})
	}
	if res.BestEffort {
		p.Logger.Emit(logging.Event{Level: "warn", Event: "convergence_shortfall", Input: req.Input, Strategy: res.Strategy, Target: req.Target, Chars: res.CharCount, Iteration: res.Iterations})
	}
	p.Logger.Emit(logging.Event{Event: "generate_ok", Input: req.Input, Strategy: res.Strategy, Target: req.Target, Chars: res.CharCount, LatencyMS: time.Since(start).Milliseconds()})
	return res, nil
}

// firstPass asks for a candidate and, while retries remain, feeds keyword
// problems back into the next instruction.
func (p *Pipeline) firstPass(ctx context.Context, req Request, source string, keywords []string) (string, error) {
	issues := ""
	candidate := ""
	for attempt := 0; attempt <= p.ValidationRetries; attempt++ {
		msgs, err := p.Prompts.Generation(prompt.GenerationData{
			Source:   source,
			Target:   req.Target,
			Headroom: p.Headroom,
			Tone:     req.Tone,
			Keywords: keywords,
			Issues:   issues,
		})
		if err != nil {
			return "", err
		}
		step := "generate"
		if attempt > 0 {
			step = "validate"
		}
		p.Logger.Emit(logging.Event{Event: "api_request", Input: req.Input, Step: step, Attempt: attempt, Target: req.Target})
		started := time.Now()
		raw, err := p.Gen.Invoke(ctx, llm.Request{
			Messages:    msgs,
			MaxTokens:   convergence.MaxTokens(req.Target+p.Headroom, p.MaxTokensRatio),
			Temperature: p.Temperature,
		})
		if err != nil {
			return "", err
		}
		candidate = textnorm.Normalize(raw)
		p.Logger.Emit(logging.Event{Event: "api_response", Input: req.Input, Step: step, Attempt: attempt, Chars: textnorm.CanonicalLength(candidate), LatencyMS: time.Since(started).Milliseconds()})

		problems := validateCandidate(candidate, keywords)
		if len(problems) == 0 {
			return candidate, nil
		}
		issues = "- " + strings.Join(problems, "\n- ")
		p.Logger.Emit(logging.Event{Level: "warn", Event: "validation_warning", Input: req.Input, Attempt: attempt, Error: strings.Join(problems, "; ")})
	}
	if candidate == "" {
		return "", ErrEmptyGeneration
	}
	return candidate, nil
}

func validateCandidate(text string, keywords []string) []string {
	if text == "" {
		return []string{"出力が空でした"}
	}
	var problems []string
	for _, k := range keywords {
		switch n := textnorm.CountOccurrences(text, k); {
		case n == 0:
			problems = append(problems, fmt.Sprintf("キーワード「%s」が含まれていません", k))
		case n > 1:
			problems = append(problems, fmt.Sprintf("キーワード「%s」が %d 回使われています（1回だけにすること）", k, n))
		}
	}
	return problems
}

func dedupe(words []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
