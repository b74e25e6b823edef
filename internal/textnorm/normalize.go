package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TerminalMark ends every sentence of generated copy.
const TerminalMark = "。"

var (
	noiseRe      = regexp.MustCompile(`【[^】]*】|[ＲR][ー-][0-9０-９]+|■|＊`)
	traceRe      = regexp.MustCompile(`(?s)<think>.*?</think>`)
	openTraceRe  = regexp.MustCompile(`(?s)<think>.*$`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
	lineBreakSet = "\r\n"
)

// Normalize strips noise markers, reasoning traces and line breaks.
// The rules run until the text stops changing, so Normalize(Normalize(x)) == Normalize(x).
// Every pass after the first only removes text, so the loop terminates.
func Normalize(text string) string {
	out := text
	for {
		next := normalizeOnce(out)
		if next == out {
			return out
		}
		out = next
	}
}

func normalizeOnce(text string) string {
	t := compose(text)
	t = noiseRe.ReplaceAllString(t, "")
	t = traceRe.ReplaceAllString(t, "")
	t = openTraceRe.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	t = stripLineBreaks(t)
	return strings.TrimSpace(t)
}

// CanonicalLength counts runes after removing CR and LF. Every length
// comparison in the module goes through here.
func CanonicalLength(text string) int {
	return utf8.RuneCountInString(stripLineBreaks(text))
}

func EndsWithTerminal(text string) bool {
	return strings.HasSuffix(text, TerminalMark)
}

// EnsureTerminal appends the terminal mark when text does not already end with one.
func EnsureTerminal(text string) string {
	if EndsWithTerminal(text) {
		return text
	}
	return text + TerminalMark
}

// SplitSentences splits on the terminal mark and keeps it on each sentence.
// A trailing fragment without a mark is returned as the last element.
func SplitSentences(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	parts := strings.SplitAfter(text, TerminalMark)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CollapseSpaces cleans typed input: CR removed, full-width spaces folded,
// whitespace runs collapsed to a single space.
func CollapseSpaces(text string) string {
	t := strings.TrimSpace(text)
	t = strings.ReplaceAll(t, "\r", "")
	t = strings.ReplaceAll(t, "　", " ")
	return spaceRunRe.ReplaceAllString(t, " ")
}

// CountOccurrences reports how many times term appears in text without overlap.
func CountOccurrences(text, term string) int {
	if term == "" {
		return 0
	}
	return strings.Count(text, term)
}

// compose applies NFC one normalization segment at a time and keeps a
// segment as written when composing it would add runes.
func compose(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for s != "" {
		n := norm.NFC.NextBoundaryInString(s, true)
		if n <= 0 {
			n = len(s)
		}
		seg := s[:n]
		s = s[n:]
		if c := norm.NFC.String(seg); utf8.RuneCountInString(c) <= utf8.RuneCountInString(seg) {
			seg = c
		}
		b.WriteString(seg)
	}
	return b.String()
}

func stripLineBreaks(s string) string {
	if !strings.ContainsAny(s, lineBreakSet) {
		return s
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
