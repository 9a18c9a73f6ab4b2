// Package sse adapts an upstream chunk sequence into an outbound
// Server-Sent Events response.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ChunkSource is a pull-based sequence of text chunks. Recv returns io.EOF
// on graceful exhaustion and any other error on failure.
type ChunkSource interface {
	Recv() (string, error)
}

// WriteHeaders commits the response as an event stream. Must be called
// before the first frame.
func WriteHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// Reframe copies src to w frame by frame: one `data: {"content":...}` frame
// per chunk, then exactly one terminal frame. The terminal frame is
// `data: [DONE]` when the source ends gracefully and `data: {"error":...}`
// when it fails; nothing is written after it. The source error, if any, is
// returned for logging. The outward stream itself never reports it as an
// HTTP error because the status line is already committed.
func Reframe(w http.ResponseWriter, src ChunkSource) error {
	for {
		chunk, err := src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				writeFrame(w, "[DONE]")
				return nil
			}
			WriteError(w, err.Error())
			return err
		}
		payload, err := json.Marshal(map[string]string{"content": chunk})
		if err != nil {
			WriteError(w, "encode chunk")
			return err
		}
		writeFrame(w, string(payload))
	}
}

// WriteError emits a single error frame. Used both by Reframe and by
// handlers whose upstream connection fails before any chunk arrives.
func WriteError(w http.ResponseWriter, msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	writeFrame(w, string(payload))
}

func writeFrame(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
