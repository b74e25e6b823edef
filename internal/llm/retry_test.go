package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type scriptedTransport struct {
	outcomes []Outcome
	calls    int
}

func (s *scriptedTransport) Call(ctx context.Context, req Request) Outcome {
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		return s.outcomes[len(s.outcomes)-1]
	}
	return s.outcomes[i]
}

func recordingClient(tr Transport, opts Options) (*Client, *[]time.Duration) {
	waits := []time.Duration{}
	c := NewClient(tr, opts)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestBackoffDuration(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if got := backoffDuration(attempt, time.Second, 30*time.Second, 0); got != w {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, w)
		}
	}
	if got := backoffDuration(10, time.Second, 3*time.Second, 0); got != 3*time.Second {
		t.Fatalf("expected capped delay, got %v", got)
	}
	if got := backoffDuration(-1, time.Second, 3*time.Second, 0); got != time.Second {
		t.Fatalf("attempt clamp mismatch: %v", got)
	}
	if j := applyJitter(100*time.Millisecond, 0); j != 100*time.Millisecond {
		t.Fatalf("jitter=0 mismatch: %v", j)
	}
	if j := applyJitter(100*time.Millisecond, 2); j < 0 || j > 200*time.Millisecond {
		t.Fatalf("jitter clamp mismatch: %v", j)
	}
}

func TestInvokeRetriesThenSucceeds(t *testing.T) {
	tr := &scriptedTransport{outcomes: []Outcome{
		retryable(errors.New("timeout")),
		retryable(&StatusError{StatusCode: 502}),
		succeeded("完成です。"),
	}}
	var retried []int
	c, waits := recordingClient(tr, Options{OnRetry: func(attempt int, wait time.Duration, err error) {
		retried = append(retried, attempt)
	}})

	text, err := c.Invoke(context.Background(), Request{})
	if err != nil || text != "完成です。" {
		t.Fatalf("unexpected result text=%q err=%v", text, err)
	}
	if tr.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", tr.calls)
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, *waits); diff != "" {
		t.Fatalf("backoff waits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1}, retried); diff != "" {
		t.Fatalf("OnRetry attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeExhaustedIsUnavailable(t *testing.T) {
	cause := errors.New("read timeout")
	tr := &scriptedTransport{outcomes: []Outcome{retryable(cause)}}
	c, waits := recordingClient(tr, Options{})

	_, err := c.Invoke(context.Background(), Request{})
	if !IsUnavailable(err) || !errors.Is(err, cause) {
		t.Fatalf("expected unavailable wrapping cause, got %v", err)
	}
	if tr.calls != 3 || len(*waits) != 2 {
		t.Fatalf("unexpected calls=%d waits=%v", tr.calls, *waits)
	}
}

func TestInvokeFatalStopsImmediately(t *testing.T) {
	tr := &scriptedTransport{outcomes: []Outcome{fatal(&StatusError{StatusCode: 403, Body: "forbidden"})}}
	c, waits := recordingClient(tr, Options{})

	_, err := c.Invoke(context.Background(), Request{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 403 {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
	if IsUnavailable(err) {
		t.Fatalf("client errors must not be reported as unavailable")
	}
	if tr.calls != 1 || len(*waits) != 0 {
		t.Fatalf("expected one call without backoff, calls=%d waits=%v", tr.calls, *waits)
	}
}

func TestInvokeHonoursCancellationDuringBackoff(t *testing.T) {
	tr := &scriptedTransport{outcomes: []Outcome{retryable(errors.New("timeout"))}}
	c := NewClient(tr, Options{BaseDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	c.opts.OnRetry = func(int, time.Duration, error) { cancel() }

	_, err := c.Invoke(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.calls != 1 {
		t.Fatalf("expected 1 call, got %d", tr.calls)
	}
}

func TestInvokeRateLimiterRespectsContext(t *testing.T) {
	tr := &scriptedTransport{outcomes: []Outcome{succeeded("x")}}
	c := NewClient(tr, Options{RequestsPerMinute: 1})
	if c.limiter == nil {
		t.Fatalf("expected limiter")
	}
	if _, err := c.Invoke(context.Background(), Request{}); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Invoke(ctx, Request{}); err == nil {
		t.Fatalf("second call should be throttled past the deadline")
	}
	if tr.calls != 1 {
		t.Fatalf("throttled call must not reach the transport, calls=%d", tr.calls)
	}
}

func TestInvokeAttemptTimeoutIsRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"間に合いました。"}}]}`)
	}))
	defer ts.Close()

	c, waits := recordingClient(NewHTTPTransport(ts.URL, "m", "k", ts.Client()), Options{AttemptTimeout: 100 * time.Millisecond})
	text, err := c.Invoke(context.Background(), Request{Messages: []Message{{Role: "user", Content: "u"}}})
	if err != nil || text != "間に合いました。" {
		t.Fatalf("unexpected text=%q err=%v", text, err)
	}
	if len(*waits) != 1 || atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected one retry, waits=%v hits=%d", *waits, hits)
	}
}

func TestOutcomeKindString(t *testing.T) {
	if Success.String() != "success" || Retryable.String() != "retryable" || Fatal.String() != "fatal" {
		t.Fatalf("unexpected kind strings")
	}
	if OutcomeKind(9).String() != "outcome(9)" {
		t.Fatalf("unexpected unknown kind string")
	}
}
