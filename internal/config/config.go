package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Provider          string                    `yaml:"provider"`
	APIKeyEnv         string                    `yaml:"api_key_env"`
	PromptsDir        string                    `yaml:"prompts_dir"`
	Concurrency       int                       `yaml:"concurrency"`
	Attempts          int                       `yaml:"attempts"`
	RetryBaseMS       int                       `yaml:"retry_base_ms"`
	RequestTimeoutSec int                       `yaml:"request_timeout_sec"`
	RequestsPerMinute int                       `yaml:"requests_per_minute"`
	Target            TargetConfig              `yaml:"target"`
	Generation        GenerationConfig          `yaml:"generation"`
	Convergence       ConvergenceConfig         `yaml:"convergence"`
	Output            OutputConfig              `yaml:"output"`
	History           HistoryConfig             `yaml:"history"`
	Providers         map[string]ProviderConfig `yaml:"providers"`
}

type TargetConfig struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

type GenerationConfig struct {
	Tone              string   `yaml:"tone"`
	Keywords          string   `yaml:"keywords"`
	Temperature       *float64 `yaml:"temperature"`
	ValidationRetries int      `yaml:"validation_retries"`
}

// ConvergenceConfig selects and tunes the length strategy. Tolerance and
// Headroom are pointers so an explicit 0 survives defaulting.
type ConvergenceConfig struct {
	Strategy          string  `yaml:"strategy"`
	Tolerance         *int    `yaml:"tolerance"`
	MaxIterations     int     `yaml:"max_iterations"`
	Headroom          *int    `yaml:"headroom"`
	MaxTokensRatio    float64 `yaml:"max_tokens_ratio"`
	TailSlack         int     `yaml:"tail_slack"`
	TailMaxTokens     int     `yaml:"tail_max_tokens"`
	AdjustTemperature float64 `yaml:"adjust_temperature"`
}

const (
	defaultTemperature = 0.2
	defaultTolerance   = 5
	// truncationHeadroom is added to the first-pass target when the strategy
	// cuts text down instead of re-prompting.
	truncationHeadroom = 30
)

// SamplingTemperature returns the first-pass temperature; 0 is a valid setting.
func (g GenerationConfig) SamplingTemperature() float64 {
	if g.Temperature == nil {
		return defaultTemperature
	}
	return *g.Temperature
}

// WindowTolerance returns the ±window the resize strategy accepts.
func (c ConvergenceConfig) WindowTolerance() int {
	if c.Tolerance == nil {
		return defaultTolerance
	}
	return *c.Tolerance
}

// FirstPassHeadroom returns the configured headroom, or the strategy default
// when none was set: truncate and tail_repair ask for extra text to cut back.
func (c ConvergenceConfig) FirstPassHeadroom() int {
	if c.Headroom != nil {
		if *c.Headroom < 0 {
			return 0
		}
		return *c.Headroom
	}
	switch c.Strategy {
	case "truncate", "tail_repair":
		return truncationHeadroom
	default:
		return 0
	}
}

// Ptr returns a pointer to v, for setting optional fields.
func Ptr[T any](v T) *T {
	return &v
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIMode   string `yaml:"api_mode"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Paths struct {
	HomeDir            string
	RootDir            string
	ConfigPath         string
	PromptsDir         string
	EnvPath            string
	EnvExample         string
	ConfigSource       string
	ResolvedPromptsDir string
}

var defaultProviders = map[string]ProviderConfig{
	"huggingface": {
		BaseURL: "https://router.huggingface.co/v1",
		APIMode: "http",
		Model:   "Qwen/Qwen3-4B-Instruct-2507",
	},
	"openai": {
		BaseURL:   "https://api.openai.com/v1",
		APIMode:   "sdk",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
	},
	"deepseek": {
		BaseURL:   "https://api.deepseek.com",
		APIMode:   "sdk",
		Model:     "deepseek-chat",
		APIKeyEnv: "DEEPSEEK_API_KEY",
	},
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = "huggingface"
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		c.APIKeyEnv = "HUGGINGFACEHUB_API_TOKEN"
	}
	if strings.TrimSpace(c.PromptsDir) == "" {
		c.PromptsDir = "~/.kotoba/prompts"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryBaseMS <= 0 {
		c.RetryBaseMS = 1000
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 60
	}
	if c.RequestsPerMinute < 0 {
		c.RequestsPerMinute = 0
	}
	if c.Target.Min <= 0 {
		c.Target.Min = 10
	}
	if c.Target.Max <= 0 {
		c.Target.Max = 500
	}
	if c.Target.Default <= 0 {
		c.Target.Default = 100
	}
	if strings.TrimSpace(c.Generation.Tone) == "" {
		c.Generation.Tone = "neutral"
	}
	if c.Generation.Temperature == nil {
		c.Generation.Temperature = Ptr(defaultTemperature)
	}
	if c.Generation.ValidationRetries < 0 {
		c.Generation.ValidationRetries = 0
	}
	if strings.TrimSpace(c.Convergence.Strategy) == "" {
		c.Convergence.Strategy = "resize"
	}
	c.Convergence.Strategy = strings.ToLower(strings.TrimSpace(c.Convergence.Strategy))
	if c.Convergence.Tolerance == nil {
		c.Convergence.Tolerance = Ptr(defaultTolerance)
	}
	if c.Convergence.MaxIterations <= 0 {
		c.Convergence.MaxIterations = 2
	}
	if c.Convergence.MaxTokensRatio <= 0 {
		c.Convergence.MaxTokensRatio = 3
	}
	if c.Convergence.TailSlack <= 0 {
		c.Convergence.TailSlack = 10
	}
	if c.Convergence.TailMaxTokens <= 0 {
		c.Convergence.TailMaxTokens = 200
	}
	if c.Convergence.AdjustTemperature <= 0 {
		c.Convergence.AdjustTemperature = 0.1
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = "."
	}
	if strings.TrimSpace(c.Output.Name) == "" {
		c.Output.Name = "newspaper"
	}
	if strings.TrimSpace(c.Output.Format) == "" {
		c.Output.Format = ".txt"
	}
	if c.History.Capacity <= 0 {
		c.History.Capacity = 5
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, def := range defaultProviders {
		p, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = def
			continue
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			p.BaseURL = def.BaseURL
		}
		if strings.TrimSpace(p.APIMode) == "" {
			p.APIMode = def.APIMode
		}
		if strings.TrimSpace(p.Model) == "" {
			p.Model = def.Model
		}
		c.Providers[name] = p
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, ok := c.Providers[c.Provider]; !ok {
		return fmt.Errorf("未定義のプロバイダです：%s", c.Provider)
	}
	if c.Target.Min > c.Target.Max {
		return fmt.Errorf("target.min（%d）が target.max（%d）を超えています", c.Target.Min, c.Target.Max)
	}
	if err := c.CheckTarget(c.Target.Default); err != nil {
		return fmt.Errorf("target.default：%w", err)
	}
	switch c.Convergence.Strategy {
	case "resize", "truncate", "tail_repair":
	default:
		return fmt.Errorf("convergence.strategy が不正です：%s", c.Convergence.Strategy)
	}
	if c.Convergence.WindowTolerance() < 0 {
		return fmt.Errorf("convergence.tolerance は 0 以上にしてください（%d）", c.Convergence.WindowTolerance())
	}
	if t := c.Generation.SamplingTemperature(); t < 0 || t > 2 {
		return fmt.Errorf("generation.temperature は 0〜2 の範囲で指定してください（%g）", t)
	}
	return nil
}

// CheckTarget reports whether n lies in the configured target range.
func (c *Config) CheckTarget(n int) error {
	if n < c.Target.Min || n > c.Target.Max {
		return fmt.Errorf("文字数は %d〜%d の範囲で指定してください（%d）", c.Target.Min, c.Target.Max, n)
	}
	return nil
}

// ActiveProvider returns the selected provider's settings.
func (c *Config) ActiveProvider() ProviderConfig {
	return c.Providers[c.Provider]
}

// KeyEnv names the environment variable holding the active provider's credential.
func (c *Config) KeyEnv() string {
	if p := c.ActiveProvider(); strings.TrimSpace(p.APIKeyEnv) != "" {
		return strings.TrimSpace(p.APIKeyEnv)
	}
	return c.APIKeyEnv
}
