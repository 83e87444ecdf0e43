package executor

import (
	"bufio"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/wollfoo/ai-gateway/internal/gwauth"
	"github.com/wollfoo/ai-gateway/internal/gwerrors"
	"github.com/wollfoo/ai-gateway/internal/sse"
)

// mergeHeaders merges the auth's static (lowercased) headers and the
// request's extra headers onto r; extras override static, per spec §4.3
// step 3.
func mergeHeaders(r *http.Request, auth *gwauth.AuthRecord, extra map[string]string) {
	if auth != nil {
		for k, v := range auth.Headers {
			r.Header.Set(k, v)
		}
	}
	for k, v := range extra {
		r.Header.Set(k, v)
	}
}

// readUpstreamError reads a non-2xx response body and returns a
// gwerrors.Error carrying status, body, and any Retry-After header.
func readUpstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	retryAfter := 0
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter = secs
		}
	}
	return gwerrors.Upstream(resp.StatusCode, string(body), retryAfter)
}

// extractPassthrough copies the configured passthrough header names from
// resp into a plain map for the dispatcher to forward onto the client
// response.
func extractPassthrough(resp *http.Response, names []string) map[string]string {
	out := map[string]string{}
	for _, name := range names {
		if v := resp.Header.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// streamUpstreamBody reads resp.Body line-by-line through an SSE parser
// and pushes StreamChunks onto a channel, closing it on EOF, context
// cancellation, or scan error.
func streamUpstreamBody(ctxDone <-chan struct{}, resp *http.Response) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		parser := sse.NewParser()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 20*1024*1024)

		emit := func(events []sse.Event) bool {
			for _, ev := range events {
				select {
				case <-ctxDone:
					return false
				case out <- StreamChunk{EventType: ev.EventType, Data: ev.Data}:
				}
			}
			return true
		}

		for scanner.Scan() {
			select {
			case <-ctxDone:
				return
			default:
			}
			if !emit(parser.Feed(append(scanner.Bytes(), '\n'))) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Debugf("executor: stream scan error: %v", err)
			out <- StreamChunk{Err: err}
			return
		}
		emit(parser.Close())
	}()
	return out
}

// classifyTransportError maps a client.Do error (timeout, connect refused,
// etc.) to the Network error kind.
func classifyTransportError(err error) error {
	return gwerrors.Network(err)
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
