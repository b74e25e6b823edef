package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, ".env")
	content := "\n# comment\nA=1\nB = ' two ' \nC=\"three\"\nINVALID\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadEnvFile(p)
	if err != nil {
		t.Fatalf("LoadEnvFile error: %v", err)
	}
	if m["A"] != "1" || m["B"] != " two " || m["C"] != "three" {
		t.Fatalf("unexpected map: %#v", m)
	}
}

func TestUpsertEnvVar(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, ".env")
	if err := UpsertEnvVar(p, "HUGGINGFACEHUB_API_TOKEN", "k1"); err != nil {
		t.Fatalf("UpsertEnvVar create failed: %v", err)
	}
	m, err := LoadEnvFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if m["HUGGINGFACEHUB_API_TOKEN"] != "k1" {
		t.Fatalf("unexpected created value: %#v", m)
	}

	raw := "A=1\nHUGGINGFACEHUB_API_TOKEN=old\n#comment\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := UpsertEnvVar(p, "HUGGINGFACEHUB_API_TOKEN", "k2"); err != nil {
		t.Fatalf("UpsertEnvVar update failed: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	text := string(b)
	if !strings.Contains(text, "HUGGINGFACEHUB_API_TOKEN=k2") || strings.Contains(text, "HUGGINGFACEHUB_API_TOKEN=old") {
		t.Fatalf("unexpected updated file: %s", text)
	}
}

func TestUpsertEnvVarErrors(t *testing.T) {
	if err := UpsertEnvVar(filepath.Join(t.TempDir(), ".env"), " ", "x"); err == nil {
		t.Fatalf("expected empty key error")
	}

	d := t.TempDir()
	blocker := filepath.Join(d, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := UpsertEnvVar(filepath.Join(blocker, ".env"), "K", "V"); err == nil {
		t.Fatalf("expected mkdir failure")
	}
}

func TestResolveCredentialPrefersProcessEnv(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := UpsertEnvVar(envPath, "KOTOBA_TEST_KEY", "from-file"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KOTOBA_TEST_KEY", "from-env")
	got, err := ResolveCredential("KOTOBA_TEST_KEY", envPath)
	if err != nil || got != "from-env" {
		t.Fatalf("unexpected credential: %q %v", got, err)
	}

	t.Setenv("KOTOBA_TEST_KEY", "")
	got, err = ResolveCredential("KOTOBA_TEST_KEY", envPath)
	if err != nil || got != "from-file" {
		t.Fatalf("expected .env fallback: %q %v", got, err)
	}
}

func TestResolveCredentialMissing(t *testing.T) {
	t.Setenv("KOTOBA_TEST_KEY", "")
	_, err := ResolveCredential("KOTOBA_TEST_KEY", filepath.Join(t.TempDir(), "missing.env"))
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if !strings.Contains(err.Error(), "KOTOBA_TEST_KEY") {
		t.Fatalf("error should name the variable: %v", err)
	}
	if _, err := ResolveCredential(" ", ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential for empty name, got %v", err)
	}
}
