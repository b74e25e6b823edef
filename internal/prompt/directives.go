package prompt

import (
	"regexp"
	"strings"
)

type Tone string

const (
	ToneFormal  Tone = "formal"
	ToneSoft    Tone = "soft"
	ToneNeutral Tone = "neutral"
)

// ParseTone accepts the English names and the Japanese labels used by the
// original form. Anything else maps to neutral.
func ParseTone(s string) Tone {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "formal", "かたい":
		return ToneFormal
	case "soft", "やわらかい", "やさしい":
		return ToneSoft
	default:
		return ToneNeutral
	}
}

func ToneDirective(t Tone) string {
	switch t {
	case ToneSoft:
		return "・話し言葉に近い文体で書くこと\n" +
			"・一文を短く、簡単な言葉で書くこと\n" +
			"・難しい言い回しや抽象語は使わないこと\n"
	default:
		return ""
	}
}

var keywordSepRe = regexp.MustCompile(`[ 　]+`)

// SplitKeywords splits on runs of half- or full-width spaces and drops
// empty and repeated terms, keeping first-seen order.
func SplitKeywords(raw string) []string {
	parts := keywordSepRe.Split(strings.TrimSpace(raw), -1)
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func KeywordDirective(raw string) string {
	return keywordDirective(SplitKeywords(raw))
}

func keywordDirective(words []string) string {
	if len(words) == 0 {
		return ""
	}
	return "・キーワード指定: " + strings.Join(words, "、") + "\n" +
		"・各キーワードは文章中に必ず1回だけ使うこと\n" +
		"・キーワードが文のつながりを邪魔しないよう、自然に組み込むこと\n"
}
