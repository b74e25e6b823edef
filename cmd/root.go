package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"kotoba/internal/app"
)

type genFlags struct {
	configArg      string
	outputDirArg   string
	nameArg        string
	formatArg      string
	targetArg      int
	toneArg        string
	keywordsArg    string
	strategyArg    string
	providerArg    string
	textArg        string
	concurrencyArg int
	attemptsArg    int
	logFileArg     string
	verboseArg     bool
	ndjsonArg      bool
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := NewRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(normalizeArgs(os.Args[1:]))
	return root.ExecuteContext(ctx)
}

func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &genFlags{}
	showVersion := false

	root := &cobra.Command{
		Use:           "kotoba [file_or_dir ...]",
		Short:         "原稿から指定文字数ちょうどの日本語広告文を生成する",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGen(stdout, stderr, flags, &showVersion),
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.HiddenDefaultCmd = true
	bindGenFlags(root, flags)
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "バージョンを表示")

	genCmd := &cobra.Command{
		Use:           "gen [file_or_dir ...]",
		Short:         "ファイルまたは --text の原稿から広告文を生成して保存",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGen(stdout, stderr, flags, &showVersion),
	}
	root.AddCommand(genCmd)
	root.AddCommand(newInteractiveCmd(stdout, stderr, flags))
	root.AddCommand(newSetCmd(stdout, flags))

	versionCmd := &cobra.Command{
		Use:           "version",
		Short:         "バージョンを表示",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(stdout)
		},
	}
	root.AddCommand(versionCmd)
	return root
}

func bindGenFlags(cmd *cobra.Command, flags *genFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configArg, "config", "", "設定ファイルのパス（既定 ~/.kotoba/config.yaml）")
	pf.StringVarP(&flags.outputDirArg, "out", "o", "", "出力先ディレクトリ（既定はカレントディレクトリ）")
	pf.StringVar(&flags.nameArg, "name", "", "出力ファイル名（既定 newspaper）")
	pf.StringVar(&flags.formatArg, "format", "", "出力形式 txt / docx")
	pf.IntVarP(&flags.targetArg, "target", "t", 0, "目標文字数")
	pf.StringVar(&flags.toneArg, "tone", "", "文体 formal / soft / neutral")
	pf.StringVarP(&flags.keywordsArg, "keywords", "k", "", "必ず1回使うキーワード（空白区切り）")
	pf.StringVar(&flags.strategyArg, "strategy", "", "文字数の収束方式 resize / truncate / tail_repair")
	pf.StringVar(&flags.providerArg, "provider", "", "設定の provider を上書き")
	pf.StringVar(&flags.textArg, "text", "", "ファイルの代わりに原稿を直接指定")
	pf.IntVar(&flags.concurrencyArg, "concurrency", 0, "同時に処理するファイル数")
	pf.IntVar(&flags.attemptsArg, "attempts", 0, "生成サービスへの最大試行回数")
	pf.StringVar(&flags.logFileArg, "log-file", "", "NDJSON ログの出力先")
	pf.BoolVar(&flags.verboseArg, "verbose", false, "デバッグイベントも出力")
	pf.BoolVar(&flags.ndjsonArg, "ndjson", false, "標準出力を NDJSON にする")
}

func (f *genFlags) options(stdout, stderr io.Writer, cwd string) app.Options {
	return app.Options{
		Text:        f.textArg,
		ConfigPath:  f.configArg,
		OutputDir:   f.outputDirArg,
		OutputName:  f.nameArg,
		Format:      f.formatArg,
		Target:      f.targetArg,
		Tone:        f.toneArg,
		Keywords:    f.keywordsArg,
		Strategy:    f.strategyArg,
		Provider:    f.providerArg,
		Concurrency: f.concurrencyArg,
		Attempts:    f.attemptsArg,
		LogFile:     f.logFileArg,
		Verbose:     f.verboseArg,
		NDJSON:      f.ndjsonArg,
		CWD:         cwd,
		Stdout:      stdout,
		Stderr:      stderr,
	}
}

func runGen(stdout, stderr io.Writer, flags *genFlags, showVersion *bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if showVersion != nil && *showVersion {
			printVersion(stdout)
			return nil
		}
		if len(args) == 0 && strings.TrimSpace(flags.textArg) == "" {
			_ = cmd.Help()
			return nil
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("カレントディレクトリを取得できません：%w", err)
		}
		opts := flags.options(stdout, stderr, cwd)
		opts.Inputs = args

		res, err := app.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}

		finalLine := fmt.Sprintf("完了：成功 %d、失敗 %d、所要時間 %s", res.Succeeded, res.Failed, formatDurationMS(res.ElapsedMS))
		if res.Failed > 0 {
			return errors.New(finalLine)
		}
		if !flags.ndjsonArg {
			fmt.Fprintln(stdout, finalLine)
		}
		return nil
	}
}

func formatDurationMS(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60_000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000.0)
	}
	minutes := ms / 60_000
	remainMS := ms % 60_000
	if remainMS == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%.1fs", minutes, float64(remainMS)/1000.0)
}

// valueFlags take a separate argument, so the token after them is not a source.
var valueFlags = map[string]struct{}{
	"--config": {}, "--out": {}, "-o": {}, "--name": {}, "--format": {},
	"--target": {}, "-t": {}, "--tone": {}, "--keywords": {}, "-k": {},
	"--strategy": {}, "--provider": {}, "--text": {}, "--concurrency": {},
	"--attempts": {}, "--log-file": {},
}

func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	first := args[0]
	switch first {
	case "gen", "interactive", "set", "help", "completion", "version":
		return args
	}
	if first == "-h" || first == "--help" || first == "-v" || first == "--version" {
		return args
	}
	if !containsPositionalSource(args) {
		return args
	}
	return append([]string{"gen"}, args...)
}

func containsPositionalSource(args []string) bool {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return i+1 < len(args)
		}
		if _, ok := valueFlags[arg]; ok {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return true
	}
	return false
}
