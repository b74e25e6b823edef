package llm

import (
	"errors"
	"fmt"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// OutcomeKind tells the retry loop what to do with a single attempt.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Retryable
	Fatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of one call to the generation service.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

func succeeded(text string) Outcome { return Outcome{Kind: Success, Text: text} }

func retryable(err error) Outcome { return Outcome{Kind: Retryable, Err: err} }

func fatal(err error) Outcome { return Outcome{Kind: Fatal, Err: err} }

// ErrGenerationUnavailable is returned once every attempt ended in a retryable failure.
var ErrGenerationUnavailable = errors.New("生成サービスから応答を取得できませんでした")

// StatusError carries a non-2xx HTTP status from the generation service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// Temporary reports whether the status is a server-side failure worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}
