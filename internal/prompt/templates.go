package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"kotoba/internal/llm"
	"kotoba/internal/textnorm"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

const (
	GenerateFile = "generate.tmpl"
	ResizeFile   = "resize.tmpl"
	TailFile     = "tail.tmpl"
)

var templateFiles = []string{GenerateFile, ResizeFile, TailFile}

const resizeSystemPrompt = "あなたは日本語文章の文字数を正確に調整する編集者です。"

// Set holds the parsed prompt templates.
type Set struct {
	generate *template.Template
	resize   *template.Template
	tail     *template.Template
}

type GenerationData struct {
	Source   string
	Target   int
	Headroom int
	Tone     Tone
	Keywords []string
	Issues   string
}

type ResizeData struct {
	Text      string
	Target    int
	Tolerance int
	Tone      Tone
	Keywords  []string
}

type TailData struct {
	Head     string
	Tail     string
	Target   int
	Tone     Tone
	Keywords []string
}

// Default parses the embedded templates.
func Default() *Set {
	s, err := parseFS(func(name string) ([]byte, error) {
		return embeddedTemplates.ReadFile("templates/" + name)
	})
	if err != nil {
		panic(err)
	}
	return s
}

// EnsureFiles writes the embedded templates into dir unless a file of the same
// name is already there.
func EnsureFiles(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("プロンプトディレクトリが空です")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("プロンプトディレクトリの作成に失敗しました（%s）：%w", dir, err)
	}
	for _, name := range templateFiles {
		target := filepath.Join(dir, name)
		if st, err := os.Stat(target); err == nil && !st.IsDir() {
			continue
		}
		content, err := embeddedTemplates.ReadFile("templates/" + name)
		if err != nil {
			return fmt.Errorf("内蔵プロンプトの読み込みに失敗しました（%s）：%w", name, err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("既定プロンプトの書き込みに失敗しました（%s）：%w", target, err)
		}
	}
	return nil
}

// Load parses the templates found in dir.
func Load(dir string) (*Set, error) {
	return parseFS(func(name string) ([]byte, error) {
		p := filepath.Join(dir, name)
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("プロンプトファイルの読み込みに失敗しました（%s）：%w", p, err)
		}
		return raw, nil
	})
}

func parseFS(read func(name string) ([]byte, error)) (*Set, error) {
	parsed := make(map[string]*template.Template, len(templateFiles))
	for _, name := range templateFiles {
		raw, err := read(name)
		if err != nil {
			return nil, err
		}
		tpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("プロンプトの構文エラー（%s）：%w", name, err)
		}
		parsed[name] = tpl
	}
	return &Set{
		generate: parsed[GenerateFile],
		resize:   parsed[ResizeFile],
		tail:     parsed[TailFile],
	}, nil
}

// Generation builds the first-pass request messages.
func (s *Set) Generation(d GenerationData) ([]llm.Message, error) {
	user, err := render(s.generate, map[string]any{
		"Source":           d.Source,
		"Target":           d.Target,
		"Headroom":         d.Headroom,
		"Limit":            d.Target + d.Headroom,
		"ToneDirective":    ToneDirective(d.Tone),
		"KeywordDirective": keywordDirective(d.Keywords),
		"Issues":           d.Issues,
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{{Role: "user", Content: user}}, nil
}

// Resize builds the expand/trim request for the current candidate.
func (s *Set) Resize(d ResizeData) ([]llm.Message, error) {
	current := textnorm.CanonicalLength(d.Text)
	diff := d.Target - current
	delta := diff
	if delta < 0 {
		delta = -delta
	}
	user, err := render(s.resize, map[string]any{
		"Text":             d.Text,
		"Target":           d.Target,
		"Tolerance":        d.Tolerance,
		"Current":          current,
		"Delta":            delta,
		"Expand":           diff > 0,
		"ToneDirective":    ToneDirective(d.Tone),
		"KeywordDirective": keywordDirective(d.Keywords),
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: "system", Content: resizeSystemPrompt},
		{Role: "user", Content: user},
	}, nil
}

// Tail builds the request that rewrites only the last sentence; head is
// context and is not expected back.
func (s *Set) Tail(d TailData) ([]llm.Message, error) {
	headLength := textnorm.CanonicalLength(d.Head)
	budget := d.Target - headLength
	if budget < 1 {
		budget = 1
	}
	user, err := render(s.tail, map[string]any{
		"Head":             d.Head,
		"Tail":             d.Tail,
		"Target":           d.Target,
		"HeadLength":       headLength,
		"TailBudget":       budget,
		"ToneDirective":    ToneDirective(d.Tone),
		"KeywordDirective": keywordDirective(d.Keywords),
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{{Role: "user", Content: user}}, nil
}

func render(tpl *template.Template, data map[string]any) (string, error) {
	if tpl == nil {
		return "", fmt.Errorf("プロンプトテンプレートが未設定です")
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("プロンプトの生成に失敗しました（%s）：%w", tpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
