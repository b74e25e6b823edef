package convergence

import (
	"context"
	"fmt"
	"math"
	"strings"

	"kotoba/internal/llm"
	"kotoba/internal/prompt"
)

const (
	StrategyResize     = "resize"
	StrategyTruncate   = "truncate"
	StrategyTailRepair = "tail_repair"
)

// Generator is the part of llm.Client the engine needs.
type Generator interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

type Input struct {
	Candidate string
	Target    int
	Tone      prompt.Tone
	Keywords  []string
}

type Strategy interface {
	Name() string
	Converge(ctx context.Context, in Input) (Result, error)
}

// Step is reported after every call the engine makes to the generator.
type Step struct {
	Strategy  string
	Iteration int
	Before    int
	After     int
	Target    int
}

type Config struct {
	Strategy          string
	Tolerance         int
	MaxIterations     int
	AdjustTemperature float64
	TailSlack         int
	TailMaxTokens     int
	MaxTokensRatio    float64
	OnStep            func(Step)
}

// New builds the strategy named by cfg.Strategy. The choice is fixed for the
// lifetime of the returned value.
func New(cfg Config, gen Generator, prompts *prompt.Set) (Strategy, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Strategy))
	if name != StrategyTruncate {
		if gen == nil {
			return nil, fmt.Errorf("%s には生成クライアントが必要です", name)
		}
		if prompts == nil {
			return nil, fmt.Errorf("%s にはプロンプトが必要です", name)
		}
	}
	switch name {
	case StrategyResize:
		return &Resize{
			Gen:            gen,
			Prompts:        prompts,
			Tolerance:      cfg.Tolerance,
			MaxIterations:  cfg.MaxIterations,
			Temperature:    cfg.AdjustTemperature,
			MaxTokensRatio: cfg.MaxTokensRatio,
			OnStep:         cfg.OnStep,
		}, nil
	case StrategyTruncate:
		return Truncate{}, nil
	case StrategyTailRepair:
		return &TailRepair{
			Gen:         gen,
			Prompts:     prompts,
			Slack:       cfg.TailSlack,
			Temperature: cfg.AdjustTemperature,
			MaxTokens:   cfg.TailMaxTokens,
			OnStep:      cfg.OnStep,
		}, nil
	default:
		return nil, fmt.Errorf("未対応の収束方式です：%s", cfg.Strategy)
	}
}

// MaxTokens sizes a request for a target length.
func MaxTokens(target int, ratio float64) int {
	if ratio <= 0 {
		ratio = 3
	}
	n := int(math.Ceil(float64(target) * ratio))
	if n < 16 {
		n = 16
	}
	return n
}
