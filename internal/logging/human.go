package logging

import (
	"fmt"
	"path/filepath"
	"strings"
)

var stepLabels = map[string]string{
	"generate": "広告文の生成",
	"validate": "キーワード補正の再生成",
	"resize":   "文字数の調整",
	"tail":     "末尾文の書き直し",
}

func humanStepLabel(step string) string {
	if label, ok := stepLabels[step]; ok {
		return label
	}
	return step
}

func (l *Logger) formatHuman(ev Event) string {
	name := displayName(ev)
	switch ev.Event {
	case "startup":
		return fmt.Sprintf("開始：%s / %s", fallback(ev.Provider, "-"), fallback(ev.Model, "-"))
	case "config_loaded":
		return ""
	case "scan_warning", "ingest_warning":
		return fmt.Sprintf("注意：%s：%s", name, ev.Error)
	case "api_request":
		return l.onceLine(ev.Input+"|"+ev.Step, fmt.Sprintf("%s：%sを開始", name, humanStepLabel(ev.Step)))
	case "api_response":
		return fmt.Sprintf("%s：%sが完了（%s）", name, humanStepLabel(ev.Step), formatHumanDurationMS(ev.LatencyMS))
	case "retry_backoff":
		return fmt.Sprintf("%s：再試行します（%d 回目、%s 後）", name, ev.Attempt+1, formatHumanDurationMS(ev.WaitMS))
	case "convergence_step":
		return fmt.Sprintf("%s：%s %d 回目 %d 文字（目標 %d）", name, humanStepLabel(ev.Step), ev.Iteration, ev.Chars, ev.Target)
	case "convergence_shortfall":
		return fmt.Sprintf("%s：目標 %d 文字に収まりませんでした（%d 文字）", name, ev.Target, ev.Chars)
	case "keyword_missing":
		return fmt.Sprintf("%s：キーワードが含まれていません：%s", name, ev.Error)
	case "keyword_duplicate":
		return fmt.Sprintf("%s：キーワードが複数回使われています：%s", name, ev.Error)
	case "generate_ok":
		return fmt.Sprintf("%s：生成完了 %d 文字（%s）", name, ev.Chars, formatHumanDurationMS(ev.LatencyMS))
	case "generate_failed":
		return fmt.Sprintf("%s：生成に失敗しました：%s", name, ev.Error)
	case "write_ok":
		return fmt.Sprintf("保存しました：%s", ev.OutputFile)
	case "write_failed":
		return fmt.Sprintf("%s：保存に失敗しました：%s", name, ev.Error)
	case "finished":
		return fmt.Sprintf("完了（%s）", formatHumanDurationMS(ev.LatencyMS))
	default:
		return ""
	}
}

func displayName(ev Event) string {
	if ev.Input != "" {
		return filepath.Base(ev.Input)
	}
	return fallback(ev.Label, "入力")
}

// onceLine returns line the first time key is seen and "" afterwards.
// Callers hold l.mu.
func (l *Logger) onceLine(key, line string) string {
	if l.onceKeys == nil {
		l.onceKeys = map[string]struct{}{}
	}
	if _, ok := l.onceKeys[key]; ok {
		return ""
	}
	l.onceKeys[key] = struct{}{}
	return line
}

func formatHumanDurationMS(ms int64) string {
	switch {
	case ms <= 0:
		return "0ms"
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60_000:
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	default:
		m := ms / 60_000
		s := (ms % 60_000) / 1000
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
