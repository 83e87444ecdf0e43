// Package sse implements the gateway's SSE parsing and response-writing
// halves: Parser turns a raw byte stream into discrete events; Writer
// delivers an already-translated line sequence to the client with
// keepalives. The bootstrap-retry envelope is not here; it lives in
// package dispatch (DispatchStream).
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one parsed SSE block: event_type is optional, data concatenates
// every data: line of the block joined by "\n".
type Event struct {
	EventType string
	Data      string
}

// Parser accumulates a UTF-8 buffer and emits Events as blank-line
// boundaries are found, per spec §4.7.
type Parser struct {
	buf strings.Builder
}

// NewParser returns an empty Parser.
func NewParser() *Parser { return &Parser{} }

// Feed appends chunk to the internal buffer and returns every complete
// event found so far, draining the buffer up to the last boundary.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf.WriteString(string(chunk))
	return p.drain(false)
}

// Close flushes any trailing block left in the buffer at end-of-stream.
func (p *Parser) Close() []Event {
	return p.drain(true)
}

func (p *Parser) drain(final bool) []Event {
	var events []Event
	remaining := p.buf.String()

	for {
		idx, width := findBoundary(remaining)
		if idx < 0 {
			if final && remaining != "" {
				if ev, ok := parseBlock(remaining); ok {
					events = append(events, ev)
				}
				remaining = ""
			}
			break
		}
		block := remaining[:idx]
		remaining = remaining[idx+width:]
		if ev, ok := parseBlock(block); ok {
			events = append(events, ev)
		}
	}

	p.buf.Reset()
	p.buf.WriteString(remaining)
	return events
}

// findBoundary locates the first blank-line boundary ("\n\n" or
// "\r\n\r\n") in s, returning its index and width, or (-1, 0) if absent.
func findBoundary(s string) (int, int) {
	if idx := strings.Index(s, "\r\n\r\n"); idx >= 0 {
		if lfIdx := strings.Index(s, "\n\n"); lfIdx < 0 || idx <= lfIdx {
			return idx, 4
		}
	}
	if idx := strings.Index(s, "\n\n"); idx >= 0 {
		return idx, 2
	}
	return -1, 0
}

func parseBlock(block string) (Event, bool) {
	var ev Event
	var dataLines []string

	scanner := bufio.NewScanner(strings.NewReader(block))
	scanner.Buffer(make([]byte, 0, 64*1024), 20*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, ":"):
			// comment, skip
		case strings.HasPrefix(line, "event:"):
			ev.EventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			// ignored
		}
	}

	if len(dataLines) == 0 {
		return Event{}, false
	}
	ev.Data = strings.Join(dataLines, "\n")
	return ev, true
}

// ParseAll is a convenience wrapper for non-streaming callers (e.g. tests)
// that already have a complete byte stream in hand.
func ParseAll(r io.Reader) ([]Event, error) {
	p := NewParser()
	var events []Event
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			events = append(events, p.Feed(buf[:n])...)
		}
		if err == io.EOF {
			events = append(events, p.Close()...)
			return events, nil
		}
		if err != nil {
			return events, err
		}
	}
}
