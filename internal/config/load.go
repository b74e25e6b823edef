package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"kotoba/internal/prompt"
)

//go:embed default.yaml
var embeddedDefaultConfig []byte

//go:embed default_env.example
var embeddedEnvExample []byte

func Load(pathArg, cwd string) (*Config, *Paths, error) {
	paths, err := resolvePaths(pathArg)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureBootstrap(paths); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(paths.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("設定ファイルを読み込めません（%s）：%w", paths.ConfigPath, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, nil, fmt.Errorf("設定ファイルの形式が正しくありません（%s）：%w", paths.ConfigPath, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("設定エラー（%s）：%w", paths.ConfigPath, err)
	}

	paths.ConfigSource = paths.ConfigPath
	paths.ResolvedPromptsDir = expandPath(cfg.PromptsDir, paths.HomeDir, cwd)
	if err := prompt.EnsureFiles(paths.ResolvedPromptsDir); err != nil {
		return nil, nil, err
	}
	return cfg, paths, nil
}

func resolvePaths(configArg string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("ホームディレクトリを取得できません：%w", err)
	}
	root := filepath.Join(home, ".kotoba")
	configPath := filepath.Join(root, "config.yaml")
	if strings.TrimSpace(configArg) != "" {
		configPath = expandPath(configArg, home, "")
	}

	return &Paths{
		HomeDir:    home,
		RootDir:    root,
		ConfigPath: configPath,
		PromptsDir: filepath.Join(root, "prompts"),
		EnvPath:    filepath.Join(root, ".env"),
		EnvExample: filepath.Join(root, ".env.example"),
	}, nil
}

func ensureBootstrap(paths *Paths) error {
	if err := os.MkdirAll(filepath.Dir(paths.ConfigPath), 0o755); err != nil {
		return fmt.Errorf("設定ディレクトリを作成できません：%w", err)
	}
	if err := os.MkdirAll(paths.RootDir, 0o755); err != nil {
		return fmt.Errorf("設定ディレクトリを作成できません：%w", err)
	}
	if err := ensureFile(paths.ConfigPath, embeddedDefaultConfig, 0o644); err != nil {
		return err
	}
	if err := ensureFile(paths.EnvExample, embeddedEnvExample, 0o644); err != nil {
		return err
	}
	return prompt.EnsureFiles(paths.PromptsDir)
}

func ensureFile(path string, data []byte, mode os.FileMode) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("既定ファイルを書き込めません（%s）：%w", path, err)
	}
	return nil
}

func expandPath(v, home, cwd string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if v == "~" {
		return home
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	if filepath.IsAbs(v) {
		return v
	}
	if strings.TrimSpace(cwd) != "" {
		return filepath.Join(cwd, v)
	}
	return v
}

// ExpandPath resolves "~" and relative paths the same way config values are.
func (p *Paths) ExpandPath(v, cwd string) string {
	return expandPath(v, p.HomeDir, cwd)
}
