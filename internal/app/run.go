package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kotoba/internal/config"
	"kotoba/internal/convergence"
	"kotoba/internal/discovery"
	"kotoba/internal/export"
	"kotoba/internal/history"
	"kotoba/internal/ingest"
	"kotoba/internal/llm"
	"kotoba/internal/logging"
	"kotoba/internal/output"
	"kotoba/internal/prompt"
	"kotoba/internal/session"
)

type Options struct {
	Inputs      []string
	Text        string
	ConfigPath  string
	OutputDir   string
	OutputName  string
	Format      string
	Target      int
	Tone        string
	Keywords    string
	Strategy    string
	Provider    string
	Concurrency int
	Attempts    int
	LogFile     string
	Verbose     bool
	NDJSON      bool
	CWD         string
	Stdout      io.Writer
	Stderr      io.Writer
	HTTPClient  *http.Client
}

type Result struct {
	Succeeded int
	Failed    int
	ElapsedMS int64
	Outputs   []string
}

// environment is everything a run needs once configuration is resolved.
type environment struct {
	cfg      *config.Config
	paths    *config.Paths
	cwd      string
	logger   *logging.Logger
	closer   io.Closer
	pipeline *Pipeline
	session  *session.Session
	mode     export.Mode
	outDir   string
	target   int
	tone     prompt.Tone
	keywords []string
	stdout   io.Writer
}

func (e *environment) Close() {
	e.logger.Sync()
	if e.closer != nil {
		_ = e.closer.Close()
	}
	e.session.Close()
}

func setup(opts Options) (*environment, error) {
	cwd := strings.TrimSpace(opts.CWD)
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("カレントディレクトリを取得できません：%w", err)
		}
		cwd = wd
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	cfg, paths, err := config.Load(opts.ConfigPath, cwd)
	if err != nil {
		return nil, err
	}
	overrideConfig(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target := cfg.Target.Default
	if opts.Target > 0 {
		target = opts.Target
	}
	if err := cfg.CheckTarget(target); err != nil {
		return nil, err
	}
	mode, err := export.ParseMode(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.ResolveCredential(cfg.KeyEnv(), paths.EnvPath)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(stdout, opts.LogFile, opts.NDJSON, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("ログを初期化できません：%w", err)
	}

	prompts, err := prompt.Load(paths.ResolvedPromptsDir)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	providerCfg := cfg.ActiveProvider()
	transport, err := llm.NewTransport(llm.Settings{
		APIMode: providerCfg.APIMode,
		BaseURL: providerCfg.BaseURL,
		Model:   providerCfg.Model,
		APIKey:  apiKey,
	}, opts.HTTPClient)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	client := llm.NewClient(transport, llm.Options{
		Attempts:          cfg.Attempts,
		BaseDelay:         time.Duration(cfg.RetryBaseMS) * time.Millisecond,
		AttemptTimeout:    time.Duration(cfg.RequestTimeoutSec) * time.Second,
		RequestsPerMinute: cfg.RequestsPerMinute,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Emit(logging.Event{Level: "warn", Event: "retry_backoff", Provider: cfg.Provider, Model: providerCfg.Model, Attempt: attempt, WaitMS: wait.Milliseconds(), Error: err.Error()})
		},
	})
	pipeline, err := NewPipeline(cfg, client, prompts, logger)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	outDir := cfg.Output.Dir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(cwd, outDir)
	}

	env := &environment{
		cfg:      cfg,
		paths:    paths,
		cwd:      cwd,
		logger:   logger,
		closer:   closer,
		pipeline: pipeline,
		session:  session.New(cfg.History.Capacity),
		mode:     mode,
		outDir:   outDir,
		target:   target,
		tone:     prompt.ParseTone(cfg.Generation.Tone),
		keywords: prompt.SplitKeywords(cfg.Generation.Keywords),
		stdout:   stdout,
	}
	logger.Emit(logging.Event{Event: "startup", Session: env.session.ID, Provider: cfg.Provider, Model: providerCfg.Model, Strategy: cfg.Convergence.Strategy})
	logger.Emit(logging.Event{Level: "debug", Event: "config_loaded", Input: paths.ConfigSource})
	return env, nil
}

// Run generates copy for every discovered input (or for opts.Text) and
// writes each result to the output directory.
func Run(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	env, err := setup(opts)
	if err != nil {
		return Result{}, err
	}
	defer env.Close()

	type job struct {
		path string
		doc  ingest.Document
	}
	var jobs []job
	if strings.TrimSpace(opts.Text) != "" {
		jobs = append(jobs, job{doc: ingest.FromText(opts.Text)})
	} else {
		inputPaths := make([]string, 0, len(opts.Inputs))
		for _, in := range opts.Inputs {
			inputPaths = append(inputPaths, absPath(env.cwd, in))
		}
		found, err := discovery.Discover(inputPaths)
		if err != nil {
			return Result{}, err
		}
		for _, w := range found.Warnings {
			env.logger.Emit(logging.Event{Level: "warn", Event: "scan_warning", Error: w})
		}
		for _, f := range found.Files {
			jobs = append(jobs, job{path: f})
		}
	}

	var (
		mu     sync.Mutex
		result Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.cfg.Concurrency)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			doc := j.doc
			if j.path != "" {
				var ingestErr error
				doc, ingestErr = ingest.FromFile(j.path)
				if ingestErr != nil {
					env.logger.Emit(logging.Event{Level: "warn", Event: "ingest_warning", Input: j.path, Error: ingestErr.Error()})
					doc = ingest.Document{Origin: ingest.OriginFile, Name: filepath.Base(j.path)}
				}
			}
			path, ok := env.process(gctx, j.path, doc)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				result.Succeeded++
				result.Outputs = append(result.Outputs, path)
			} else {
				result.Failed++
			}
			return gctx.Err()
		})
	}
	waitErr := g.Wait()

	result.ElapsedMS = time.Since(start).Milliseconds()
	env.logger.Emit(logging.Event{Event: "finished", Session: env.session.ID, LatencyMS: result.ElapsedMS, Attempt: result.Succeeded + result.Failed})
	if waitErr != nil {
		return result, waitErr
	}
	return result, nil
}

// process generates, records and saves one document. It reports the written
// path and whether everything succeeded.
func (e *environment) process(ctx context.Context, input string, doc ingest.Document) (string, bool) {
	label := history.Label(doc)
	name := input
	if name == "" {
		name = label
	}
	res, err := e.pipeline.Generate(ctx, Request{
		Source:   doc,
		Target:   e.target,
		Tone:     e.tone,
		Keywords: e.keywords,
		Input:    name,
	})
	if err != nil {
		e.logger.Emit(logging.Event{Level: "error", Event: "generate_failed", Input: name, Error: err.Error()})
		return "", false
	}
	e.session.Apply(label, res)
	if input == "" {
		printResult(e.stdout, res)
	}
	path, err := e.save(res.Text, e.cfg.Output.Name, e.mode)
	if err != nil {
		e.logger.Emit(logging.Event{Level: "error", Event: "write_failed", Input: name, Error: err.Error()})
		return "", false
	}
	e.logger.Emit(logging.Event{Event: "write_ok", Input: name, Session: e.session.ID, OutputFile: path, Chars: res.CharCount})
	return path, true
}

func (e *environment) save(text, base string, mode export.Mode) (string, error) {
	data, err := export.Render(text, mode)
	if err != nil {
		return "", err
	}
	return output.WriteNew(e.outDir, export.FileName(base, e.cfg.Output.Name, mode), data, nil)
}

func printResult(w io.Writer, res convergence.Result) {
	mark := ""
	if !res.SatisfiesLength {
		mark = "（目標外）"
	}
	fmt.Fprintf(w, "%s\n[%d 文字%s]\n", res.Text, res.CharCount, mark)
}

func overrideConfig(cfg *config.Config, opts Options) {
	if strings.TrimSpace(opts.OutputDir) != "" {
		cfg.Output.Dir = opts.OutputDir
	}
	if strings.TrimSpace(opts.OutputName) != "" {
		cfg.Output.Name = opts.OutputName
	}
	if strings.TrimSpace(opts.Format) != "" {
		cfg.Output.Format = opts.Format
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.Attempts > 0 {
		cfg.Attempts = opts.Attempts
	}
	if strings.TrimSpace(opts.Provider) != "" {
		cfg.Provider = strings.ToLower(strings.TrimSpace(opts.Provider))
	}
	if strings.TrimSpace(opts.Strategy) != "" {
		cfg.Convergence.Strategy = strings.ToLower(strings.TrimSpace(opts.Strategy))
	}
	if strings.TrimSpace(opts.Tone) != "" {
		cfg.Generation.Tone = opts.Tone
	}
	if strings.TrimSpace(opts.Keywords) != "" {
		cfg.Generation.Keywords = opts.Keywords
	}
}

func absPath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cwd, p)
}
