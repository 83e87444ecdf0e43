package sse

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Flusher is the subset of http.ResponseWriter the Writer needs; gin's
// gin.ResponseWriter (a context's c.Writer) implements http.Flusher, so it
// satisfies this directly.
type Flusher interface {
	http.Flusher
}

// Writer emits SSE records for a sequence of already-translated "lines" to
// an http.ResponseWriter, inserting keepalive comments when idle and
// serializing mid-stream errors as a data event. See spec §4.8.
type Writer struct {
	w                http.ResponseWriter
	flusher          Flusher
	keepaliveSeconds int

	mu          sync.Mutex
	lastWrite   time.Time
	stopKeep    chan struct{}
	keepOnce    sync.Once
	started     bool
}

// NewWriter wraps w for SSE output. keepaliveSeconds <= 0 falls back to the
// spec default of 15.
func NewWriter(w http.ResponseWriter, keepaliveSeconds int) *Writer {
	if keepaliveSeconds <= 0 {
		keepaliveSeconds = 15
	}
	fl, _ := w.(http.Flusher)
	sw := &Writer{w: w, flusher: fl, keepaliveSeconds: keepaliveSeconds, lastWrite: time.Now(), stopKeep: make(chan struct{})}
	return sw
}

// Start writes the SSE response headers and launches the keepalive timer.
func (s *Writer) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	if s.flusher != nil {
		s.flusher.Flush()
	}
	go s.keepaliveLoop()
}

// Started reports whether Start has been called, i.e. whether SSE response
// headers are already committed to the client.
func (s *Writer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stop terminates the keepalive goroutine. Safe to call multiple times.
func (s *Writer) Stop() {
	s.keepOnce.Do(func() { close(s.stopKeep) })
}

func (s *Writer) keepaliveLoop() {
	ticker := time.NewTicker(time.Duration(s.keepaliveSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopKeep:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastWrite) >= time.Duration(s.keepaliveSeconds)*time.Second
			s.mu.Unlock()
			if idle {
				s.writeRaw(": keepalive\n\n")
			}
		}
	}
}

// WriteLine processes one translated line per spec §4.8's per-line rules.
func (s *Writer) WriteLine(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return
	case trimmed == "[DONE]" || trimmed == "data: [DONE]":
		s.writeRaw("data: [DONE]\n\n")
	case strings.HasPrefix(trimmed, "event:"):
		s.writeRaw(trimmed + "\n")
	case strings.HasPrefix(trimmed, "data:"):
		s.writeRaw(trimmed + "\n\n")
	default:
		s.writeRaw("data: " + trimmed + "\n\n")
	}
}

// WriteError serializes a mid-stream error as a data event and terminates
// the stream; no retry is possible once any event has been written.
func (s *Writer) WriteError(err error) {
	s.writeRaw(fmt.Sprintf(`data: {"error":{"message":%q}}`+"\n\n", err.Error()))
}

func (s *Writer) writeRaw(s2 string) {
	s.mu.Lock()
	s.lastWrite = time.Now()
	s.mu.Unlock()
	_, _ = s.w.Write([]byte(s2))
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
