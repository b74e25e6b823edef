package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrMissingCredential = errors.New("API キーが設定されていません")

// ResolveCredential reads the key from the process environment first and
// falls back to the .env file at envPath.
func ResolveCredential(envName, envPath string) (string, error) {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return "", fmt.Errorf("%w：api_key_env が空です", ErrMissingCredential)
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	vals, err := LoadEnvFile(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if v := strings.TrimSpace(vals[envName]); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w：環境変数 %s を設定するか kotoba set key を実行してください", ErrMissingCredential, envName)
}

func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		v = strings.Trim(v, "\"'")
		if k != "" {
			out[k] = v
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf(".env を読み込めません：%w", err)
	}
	return out, nil
}

func UpsertEnvVar(path, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("環境変数名が空です")
	}
	value = strings.TrimSpace(value)
	lines := make([]string, 0, 8)
	if raw, err := os.ReadFile(path); err == nil {
		text := strings.ReplaceAll(string(raw), "\r\n", "\n")
		lines = strings.Split(text, "\n")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf(".env を読み込めません：%w", err)
	}

	found := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		idx := strings.Index(trimmed, "=")
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(trimmed[:idx])
		if k != key {
			continue
		}
		lines[i] = fmt.Sprintf("%s=%s", key, value)
		found = true
	}
	if !found {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf(".env のディレクトリを作成できません：%w", err)
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf(".env を書き込めません：%w", err)
	}
	return nil
}
