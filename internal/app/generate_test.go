package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"kotoba/internal/config"
	"kotoba/internal/convergence"
	"kotoba/internal/ingest"
	"kotoba/internal/llm"
	"kotoba/internal/logging"
	"kotoba/internal/prompt"
	"kotoba/internal/textnorm"
)

type fakeGen struct {
	replies []string
	err     error
	reqs    []llm.Request
}

func (g *fakeGen) Invoke(_ context.Context, req llm.Request) (string, error) {
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return "", g.err
	}
	i := len(g.reqs) - 1
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

func sentence(n int) string {
	return strings.Repeat("あ", n-1) + "。"
}

func testConfig(strategy string) *config.Config {
	cfg := config.Default()
	cfg.Convergence.Strategy = strategy
	cfg.Generation.ValidationRetries = 1
	return cfg
}

func newTestPipeline(t *testing.T, strategy string, gen *fakeGen, out *bytes.Buffer) *Pipeline {
	t.Helper()
	logger, _, err := logging.New(out, "", true, true)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(testConfig(strategy), gen, prompt.Default(), logger)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}
	return p
}

func TestGenerateTruncatesToTarget(t *testing.T) {
	var logs bytes.Buffer
	gen := &fakeGen{replies: []string{"【番組】" + strings.Repeat("い", 129) + "。"}}
	p := newTestPipeline(t, convergence.StrategyTruncate, gen, &logs)

	res, err := p.Generate(context.Background(), Request{Source: ingest.FromText("春の旅番組の原稿です。"), Target: 100})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.CharCount > 100 || !res.EndsWithTerminalMark || !res.SatisfiesLength || !res.Consistent() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(gen.reqs) != 1 {
		t.Fatalf("truncate needs one call, got %d", len(gen.reqs))
	}
	if !strings.Contains(gen.reqs[0].Messages[0].Content, "春の旅番組の原稿です。") {
		t.Fatalf("source missing from instruction")
	}
	if !strings.Contains(logs.String(), `"event":"generate_ok"`) {
		t.Fatalf("missing generate_ok event: %s", logs.String())
	}
}

func TestGenerateRetriesMissingKeyword(t *testing.T) {
	var logs bytes.Buffer
	gen := &fakeGen{replies: []string{sentence(100), "温泉" + sentence(98)}}
	p := newTestPipeline(t, convergence.StrategyResize, gen, &logs)

	res, err := p.Generate(context.Background(), Request{Source: ingest.FromText("原稿"), Target: 100, Keywords: []string{"温泉", "温泉"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(gen.reqs) != 2 {
		t.Fatalf("expected validation retry, got %d calls", len(gen.reqs))
	}
	second := gen.reqs[1].Messages[0].Content
	if !strings.Contains(second, "前回の出力の問題") || !strings.Contains(second, "キーワード「温泉」が含まれていません") {
		t.Fatalf("issues not fed back: %s", second)
	}
	if len(res.MissingKeywords) != 0 || !res.SatisfiesLength {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(logs.String(), `"event":"validation_warning"`) {
		t.Fatalf("missing validation_warning: %s", logs.String())
	}
}

func TestGenerateTravelFeatureScenario(t *testing.T) {
	cases := []struct {
		strategy string
		reply    string
		check    func(t *testing.T, res convergence.Result)
	}{
		{
			strategy: convergence.StrategyResize,
			reply:    "旅行" + strings.Repeat("あ", 47) + "。",
			check: func(t *testing.T, res convergence.Result) {
				if d := res.CharCount - 50; d < -5 || d > 5 || !res.EndsWithTerminalMark || !res.SatisfiesLength {
					t.Fatalf("outside the ±5 window: %+v", res)
				}
			},
		},
		{
			strategy: convergence.StrategyTruncate,
			reply:    "今週は旅行の特集です。" + strings.Repeat("い", 29) + "。" + strings.Repeat("う", 39) + "。",
			check: func(t *testing.T, res convergence.Result) {
				if res.CharCount > 50 || !res.EndsWithTerminalMark || !res.SatisfiesLength {
					t.Fatalf("hard limit broken: %+v", res)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			var logs bytes.Buffer
			gen := &fakeGen{replies: []string{tc.reply}}
			p := newTestPipeline(t, tc.strategy, gen, &logs)

			res, err := p.Generate(context.Background(), Request{
				Source:   ingest.FromText("今週の特集は旅行です。"),
				Target:   50,
				Tone:     prompt.ToneSoft,
				Keywords: []string{"旅行"},
			})
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			tc.check(t, res)
			if n := textnorm.CountOccurrences(res.Text, "旅行"); n != 1 {
				t.Fatalf("keyword must appear exactly once, got %d in %q", n, res.Text)
			}
			if res.MissingKeywords != nil || res.DuplicateKeywords != nil || !res.Consistent() {
				t.Fatalf("unexpected result: %+v", res)
			}
			first := gen.reqs[0].Messages[0].Content
			for _, want := range []string{"今週の特集は旅行です。", "一文を短く", "キーワード指定: 旅行"} {
				if !strings.Contains(first, want) {
					t.Fatalf("instruction missing %q:\n%s", want, first)
				}
			}
		})
	}
}

func TestGenerateReportsDuplicateKeyword(t *testing.T) {
	var logs bytes.Buffer
	gen := &fakeGen{replies: []string{"旅行と旅行の話です。"}}
	p := newTestPipeline(t, convergence.StrategyTruncate, gen, &logs)

	res, err := p.Generate(context.Background(), Request{Source: ingest.FromText("原稿"), Target: 50, Keywords: []string{"旅行"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(gen.reqs) != 2 {
		t.Fatalf("duplicate keyword should trigger a validation retry, got %d calls", len(gen.reqs))
	}
	if len(res.DuplicateKeywords) != 1 || res.DuplicateKeywords[0] != "旅行" {
		t.Fatalf("duplicate keyword not recorded: %+v", res)
	}
	if !strings.Contains(logs.String(), `"event":"keyword_duplicate"`) {
		t.Fatalf("missing keyword_duplicate event: %s", logs.String())
	}
}

func TestGenerateReportsShortfall(t *testing.T) {
	var logs bytes.Buffer
	gen := &fakeGen{replies: []string{sentence(150), sentence(140), sentence(130)}}
	p := newTestPipeline(t, convergence.StrategyResize, gen, &logs)

	res, err := p.Generate(context.Background(), Request{Source: ingest.FromText("原稿"), Target: 100, Keywords: []string{"温泉"}})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !res.BestEffort || res.SatisfiesLength || res.CharCount != 130 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.MissingKeywords) != 1 {
		t.Fatalf("expected missing keyword: %+v", res)
	}
	for _, ev := range []string{"convergence_shortfall", "keyword_missing", "convergence_step"} {
		if !strings.Contains(logs.String(), `"event":"`+ev+`"`) {
			t.Fatalf("missing %s event: %s", ev, logs.String())
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	gen := &fakeGen{replies: []string{sentence(100)}}
	p := newTestPipeline(t, convergence.StrategyTruncate, gen, &bytes.Buffer{})

	if _, err := p.Generate(context.Background(), Request{Source: ingest.FromText("  【見出し】 "), Target: 100}); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
	if _, err := p.Generate(context.Background(), Request{Source: ingest.FromText("原稿"), Target: 5}); err == nil {
		t.Fatalf("expected range error")
	}
	if len(gen.reqs) != 0 {
		t.Fatalf("no call expected for rejected input")
	}
}

func TestGenerateEmptyReply(t *testing.T) {
	gen := &fakeGen{replies: []string{"<think>考えています</think>"}}
	p := newTestPipeline(t, convergence.StrategyTruncate, gen, &bytes.Buffer{})
	_, err := p.Generate(context.Background(), Request{Source: ingest.FromText("原稿"), Target: 100})
	if !errors.Is(err, ErrEmptyGeneration) {
		t.Fatalf("expected ErrEmptyGeneration, got %v", err)
	}
	if len(gen.reqs) != 2 {
		t.Fatalf("empty reply should be retried once, got %d calls", len(gen.reqs))
	}
}

func TestGeneratePropagatesUnavailable(t *testing.T) {
	gen := &fakeGen{err: llm.ErrGenerationUnavailable}
	p := newTestPipeline(t, convergence.StrategyResize, gen, &bytes.Buffer{})
	_, err := p.Generate(context.Background(), Request{Source: ingest.FromText("原稿"), Target: 100})
	if !errors.Is(err, llm.ErrGenerationUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestValidateCandidate(t *testing.T) {
	if got := validateCandidate("", nil); len(got) != 1 {
		t.Fatalf("empty text should be a problem: %v", got)
	}
	got := validateCandidate("猫と猫と犬。", []string{"猫", "犬", "鳥"})
	if len(got) != 2 || !strings.Contains(got[0], "2 回") || !strings.Contains(got[1], "鳥") {
		t.Fatalf("unexpected problems: %v", got)
	}
}
