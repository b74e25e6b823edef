package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if cfg.Provider != "huggingface" {
		t.Fatalf("provider: %s", cfg.Provider)
	}
	if cfg.APIKeyEnv != "HUGGINGFACEHUB_API_TOKEN" || cfg.KeyEnv() != "HUGGINGFACEHUB_API_TOKEN" {
		t.Fatalf("api_key_env: %s / %s", cfg.APIKeyEnv, cfg.KeyEnv())
	}
	if cfg.Attempts != 3 || cfg.RetryBaseMS != 1000 || cfg.Concurrency != 1 {
		t.Fatalf("retry defaults mismatch: %+v", cfg)
	}
	if cfg.Convergence.Strategy != "resize" || cfg.Convergence.WindowTolerance() != 5 || cfg.Convergence.MaxIterations != 2 {
		t.Fatalf("convergence defaults mismatch: %+v", cfg.Convergence)
	}
	if cfg.Output.Dir != "." || cfg.Output.Name != "newspaper" || cfg.Output.Format != ".txt" {
		t.Fatalf("output defaults mismatch: %+v", cfg.Output)
	}
	if cfg.History.Capacity != 5 {
		t.Fatalf("history capacity: %d", cfg.History.Capacity)
	}
	hf := cfg.ActiveProvider()
	if hf.APIMode != "http" || hf.Model == "" || hf.BaseURL != "https://router.huggingface.co/v1" {
		t.Fatalf("huggingface defaults mismatch: %+v", hf)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestApplyDefaultsFillsPartialProvider(t *testing.T) {
	cfg := &Config{Provider: " OpenAI ", Providers: map[string]ProviderConfig{"openai": {Model: "gpt-4.1-mini"}}}
	cfg.applyDefaults()
	p := cfg.ActiveProvider()
	if cfg.Provider != "openai" || p.Model != "gpt-4.1-mini" || p.APIMode != "sdk" || p.BaseURL == "" {
		t.Fatalf("unexpected provider: %s %+v", cfg.Provider, p)
	}
	if cfg.KeyEnv() != "HUGGINGFACEHUB_API_TOKEN" {
		t.Fatalf("provider without key env falls back to global: %s", cfg.KeyEnv())
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"provider": func(c *Config) { c.Provider = "nope" },
		"range":    func(c *Config) { c.Target.Min = 600 },
		"default":  func(c *Config) { c.Target.Default = 900 },
		"strategy": func(c *Config) { c.Convergence.Strategy = "magic" },
	}
	for name, mutate := range cases {
		cfg := &Config{}
		cfg.applyDefaults()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCheckTarget(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.CheckTarget(100); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := cfg.CheckTarget(5); err == nil {
		t.Fatalf("expected error below min")
	}
	if err := cfg.CheckTarget(501); err == nil {
		t.Fatalf("expected error above max")
	}
}

func TestFirstPassHeadroomFollowsStrategy(t *testing.T) {
	cases := map[string]int{"resize": 0, "truncate": 30, "tail_repair": 30}
	for strategy, want := range cases {
		cfg := Default()
		cfg.Convergence.Strategy = strategy
		if got := cfg.Convergence.FirstPassHeadroom(); got != want {
			t.Fatalf("%s: headroom %d, want %d", strategy, got, want)
		}
	}
	cfg := Default()
	cfg.Convergence.Strategy = "truncate"
	cfg.Convergence.Headroom = Ptr(0)
	if got := cfg.Convergence.FirstPassHeadroom(); got != 0 {
		t.Fatalf("explicit headroom must win: %d", got)
	}
}

func TestApplyDefaultsKeepsExplicitZero(t *testing.T) {
	cfg := &Config{
		Generation:  GenerationConfig{Temperature: Ptr(0.0)},
		Convergence: ConvergenceConfig{Tolerance: Ptr(0)},
	}
	cfg.applyDefaults()
	if got := cfg.Generation.SamplingTemperature(); got != 0 {
		t.Fatalf("temperature 0 was replaced: %v", got)
	}
	if got := cfg.Convergence.WindowTolerance(); got != 0 {
		t.Fatalf("tolerance 0 was replaced: %d", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero settings must validate: %v", err)
	}

	cfg.Convergence.Tolerance = Ptr(-1)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative tolerance")
	}
}
