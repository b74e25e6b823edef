package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var errEmptyChoices = errors.New("応答に候補がありません")

// ExtractText returns the generated text of the first choice in a
// chat-completions style body. message.content may be a string, an array of
// {type,text} parts, or the message itself may be a bare string.
func ExtractText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("応答の解析に失敗しました：%s", truncate(string(body), 200))
	}
	if msg := errorMessage(body); msg != "" {
		return "", fmt.Errorf("生成サービスのエラー：%s", msg)
	}
	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return "", errEmptyChoices
	}
	msg := choice.Get("message")
	switch {
	case msg.Type == gjson.String:
		return msg.String(), nil
	case msg.IsObject():
		return contentText(msg.Get("content")), nil
	}
	if text := choice.Get("text"); text.Exists() {
		return text.String(), nil
	}
	return "", errEmptyChoices
}

func contentText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var b strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Type == gjson.String {
			b.WriteString(part.String())
			return true
		}
		if t := part.Get("type").String(); t != "" && t != "text" && t != "output_text" {
			return true
		}
		b.WriteString(part.Get("text").String())
		return true
	})
	return b.String()
}

func errorMessage(body []byte) string {
	e := gjson.GetBytes(body, "error")
	if !e.Exists() || e.Type == gjson.Null {
		return ""
	}
	if e.Type == gjson.String {
		return strings.TrimSpace(e.String())
	}
	return strings.TrimSpace(e.Get("message").String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
