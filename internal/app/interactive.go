package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"kotoba/internal/export"
	"kotoba/internal/history"
	"kotoba/internal/ingest"
	"kotoba/internal/logging"
	"kotoba/internal/prompt"
)

const (
	historyLabelWidth   = 16
	historyPreviewWidth = 48
	pasteTerminator     = "."
)

type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

var newLineReader = func() lineReader {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	return l
}

// Interactive runs a line-mode session: each plain line is a source text,
// slash commands adjust settings or act on history.
func Interactive(ctx context.Context, opts Options) error {
	env, err := setup(opts)
	if err != nil {
		return err
	}
	defer env.Close()
	r := newLineReader()
	defer r.Close()
	return env.repl(ctx, r)
}

func (e *environment) repl(ctx context.Context, r lineReader) error {
	w := e.stdout
	fmt.Fprintf(w, "kotoba 対話モード（目標 %d 文字、/help でコマンド一覧）\n", e.target)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := r.Prompt("kotoba> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(w)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.AppendHistory(line)

		if !strings.HasPrefix(line, "/") {
			e.generateInteractive(ctx, "", ingest.FromText(line))
			continue
		}
		quit, err := e.command(ctx, r, line)
		if err != nil {
			fmt.Fprintf(w, "エラー：%v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (e *environment) command(ctx context.Context, r lineReader, line string) (bool, error) {
	w := e.stdout
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprint(w, helpText)
	case "/target":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("文字数は数字で指定してください：%s", arg)
		}
		if err := e.cfg.CheckTarget(n); err != nil {
			return false, err
		}
		e.target = n
		fmt.Fprintf(w, "目標文字数：%d\n", n)
	case "/tone":
		e.tone = prompt.ParseTone(arg)
		fmt.Fprintf(w, "文体：%s\n", e.tone)
	case "/keywords":
		e.keywords = prompt.SplitKeywords(arg)
		fmt.Fprintf(w, "キーワード：%s\n", strings.Join(e.keywords, "、"))
	case "/file":
		if arg == "" {
			return false, fmt.Errorf("ファイルを指定してください")
		}
		path := absPath(e.cwd, arg)
		doc, err := ingest.FromFile(path)
		if err != nil {
			e.logger.Emit(logging.Event{Level: "warn", Event: "ingest_warning", Input: path, Error: err.Error()})
			doc = ingest.Document{Origin: ingest.OriginFile, Name: filepath.Base(path)}
		}
		e.generateInteractive(ctx, path, doc)
	case "/paste":
		text, err := readPaste(r)
		if err != nil {
			return false, err
		}
		e.generateInteractive(ctx, "", ingest.FromText(text))
	case "/history":
		e.printHistory()
	case "/show":
		entry, err := e.historyEntry(arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "%s\n", entry.Content)
	case "/use":
		entry, err := e.historyEntry(arg)
		if err != nil {
			return false, err
		}
		n := e.session.Edit(entry.Content)
		fmt.Fprintf(w, "編集中の文章を差し替えました [%d 文字]\n", n)
	case "/edit":
		n := e.session.Edit(arg)
		fmt.Fprintf(w, "[%d 文字 / 目標 %d]\n", n, e.target)
	case "/count":
		text, n := e.session.Buffer()
		fmt.Fprintf(w, "%s\n[%d 文字 / 目標 %d]\n", text, n, e.target)
	case "/save":
		return false, e.saveBuffer(arg)
	default:
		return false, fmt.Errorf("不明なコマンドです：%s（/help を参照）", name)
	}
	return false, nil
}

func (e *environment) generateInteractive(ctx context.Context, input string, doc ingest.Document) {
	label := history.Label(doc)
	name := input
	if name == "" {
		name = label
	}
	res, err := e.pipeline.Generate(ctx, Request{Source: doc, Target: e.target, Tone: e.tone, Keywords: e.keywords, Input: name})
	if err != nil {
		e.logger.Emit(logging.Event{Level: "error", Event: "generate_failed", Input: name, Error: err.Error()})
		fmt.Fprintf(e.stdout, "エラー：%v\n", err)
		return
	}
	e.session.Apply(label, res)
	printResult(e.stdout, res)
	if len(res.MissingKeywords) > 0 {
		fmt.Fprintf(e.stdout, "注意：キーワードが含まれていません：%s\n", strings.Join(res.MissingKeywords, "、"))
	}
}

func (e *environment) printHistory() {
	entries := e.session.History()
	if len(entries) == 0 {
		fmt.Fprintln(e.stdout, "履歴はまだありません")
		return
	}
	for i, entry := range entries {
		label := runewidth.FillRight(runewidth.Truncate(entry.Label, historyLabelWidth, "…"), historyLabelWidth)
		preview := runewidth.Truncate(entry.Content, historyPreviewWidth, "…")
		fmt.Fprintf(e.stdout, "%d  %s  %s  %s\n", i+1, entry.InsertedAt.Format("15:04:05"), label, preview)
	}
}

func (e *environment) historyEntry(arg string) (history.Entry, error) {
	entries := e.session.History()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(entries) {
		return history.Entry{}, fmt.Errorf("履歴番号は 1〜%d で指定してください", len(entries))
	}
	return entries[n-1], nil
}

// saveBuffer writes the edit buffer. arg may name the file and, after a
// space, the format.
func (e *environment) saveBuffer(arg string) error {
	text, _ := e.session.Buffer()
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("保存する文章がありません")
	}
	base := e.cfg.Output.Name
	mode := e.mode
	fields := strings.Fields(arg)
	if len(fields) > 0 {
		base = fields[0]
		if ext := strings.ToLower(strings.TrimSpace(fields[0])); strings.HasSuffix(ext, string(export.ModeDocx)) {
			mode = export.ModeDocx
		} else if strings.HasSuffix(ext, string(export.ModeText)) {
			mode = export.ModeText
		}
	}
	if len(fields) > 1 {
		m, err := export.ParseMode(fields[1])
		if err != nil {
			return err
		}
		mode = m
	}
	path, err := e.save(text, base, mode)
	if err != nil {
		e.logger.Emit(logging.Event{Level: "error", Event: "write_failed", Session: e.session.ID, Error: err.Error()})
		return err
	}
	e.logger.Emit(logging.Event{Event: "write_ok", Session: e.session.ID, OutputFile: path})
	return nil
}

func readPaste(r lineReader) (string, error) {
	var lines []string
	for {
		line, err := r.Prompt("... ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		if strings.TrimSpace(line) == pasteTerminator {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

const helpText = `コマンド：
  （文章）            その文章を原稿として広告文を生成
  /paste             複数行の原稿を入力（"." だけの行で終了）
  /file <パス>        .txt / .docx / .md を読み込んで生成
  /target <数>        目標文字数を変更
  /tone <文体>        formal / soft / neutral
  /keywords <語 ...>  キーワードを指定（空で解除）
  /history           直近の結果を一覧
  /show <番号>        履歴の全文を表示
  /use <番号>         履歴の文章を編集中の文章にする
  /edit <文章>        編集中の文章を置き換えて文字数を表示
  /count             編集中の文章と文字数を表示
  /save [名前] [形式]  編集中の文章を保存（.txt / .docx）
  /quit              終了
`
