package sse

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSource struct {
	chunks []string
	err    error
}

func (f *fakeSource) Recv() (string, error) {
	if len(f.chunks) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	return chunk, nil
}

func frames(body string) []string {
	var out []string
	for _, part := range strings.Split(body, "\n\n") {
		if strings.HasPrefix(part, "data: ") {
			out = append(out, strings.TrimPrefix(part, "data: "))
		}
	}
	return out
}

func TestReframeEmitsContentFramesThenDone(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHeaders(rec)
	err := Reframe(rec, &fakeSource{chunks: []string{"Hello", " world", "!"}})
	if err != nil {
		t.Fatalf("reframe: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	got := frames(rec.Body.String())
	want := []string{`{"content":"Hello"}`, `{"content":" world"}`, `{"content":"!"}`, "[DONE]"}
	if len(got) != len(want) {
		t.Fatalf("frame count = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReframeEmptySourceEmitsOnlyDone(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHeaders(rec)
	if err := Reframe(rec, &fakeSource{}); err != nil {
		t.Fatalf("reframe: %v", err)
	}
	got := frames(rec.Body.String())
	if len(got) != 1 || got[0] != "[DONE]" {
		t.Fatalf("frames = %v, want only [DONE]", got)
	}
}

func TestReframeSourceErrorEmitsSingleErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHeaders(rec)
	srcErr := errors.New("upstream exploded")
	err := Reframe(rec, &fakeSource{chunks: []string{"partial"}, err: srcErr})
	if !errors.Is(err, srcErr) {
		t.Fatalf("expected source error back, got %v", err)
	}
	got := frames(rec.Body.String())
	want := []string{`{"content":"partial"}`, `{"error":"upstream exploded"}`}
	if len(got) != len(want) {
		t.Fatalf("frame count = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
	for _, f := range got {
		if f == "[DONE]" {
			t.Fatalf("error stream must not contain [DONE]: %v", got)
		}
	}
}
