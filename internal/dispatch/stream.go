package dispatch

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/executor"
	"github.com/wollfoo/ai-gateway/internal/gwerrors"
	"github.com/wollfoo/ai-gateway/internal/sse"
	"github.com/wollfoo/ai-gateway/internal/translator"
)

// StreamDebugInfo carries the debug headers the caller (the HTTP handler)
// sets on the response before any SSE bytes are written.
type StreamDebugInfo struct {
	Provider   string
	Model      string
	Credential string
	Attempts   []string
}

// DispatchStream runs the streaming variant of spec §4.9. It writes
// translated SSE lines to w as they arrive. Before the first byte is
// written to the client it may retry (the "bootstrap envelope", bounded by
// streaming.bootstrap_retries); once committed, a mid-stream failure is
// written as an error event and the stream ends — no further retry.
//
// onDebug, if non-nil, is invoked with an attempt's debug info each time
// that attempt's upstream stream opens, before any of its lines are
// written, so the caller can set response headers ahead of w.Start()
// writing the status line. The last invocation before the stream commits
// is the winning attempt's.
func (d *Dispatcher) DispatchStream(ctx context.Context, desc Descriptor, w *sse.Writer, onDebug func(StreamDebugInfo)) error {
	snap := d.Store.Get()

	var lastErr error
	var debugAttempts []string
	committed := false
	bootstrapTries := 0

	for _, model := range desc.ModelChain() {
		if committed {
			break
		}
		payloadBytes, err := d.Translators.TranslateRequest(desc.SourceFormat, desc.SourceFormat, model, desc.Raw, true)
		if err != nil {
			lastErr = gwerrors.Wrap(gwerrors.KindTranslation, "rewrite model in body", err)
			continue
		}

		providers := d.Router.ResolveProviders(model)
		if snap.ForceModelPrefix && !d.Router.ModelHasPrefix(model) {
			lastErr = gwerrors.New(gwerrors.KindModelNotFound, fmt.Sprintf("model %q not found", model))
			continue
		}
		if len(providers) == 0 {
			lastErr = gwerrors.New(gwerrors.KindNoCredentials, fmt.Sprintf("no provider configured for model %q", model))
			continue
		}

		tried := map[string]bool{}
		candidates := allowedIntersect(providers, desc.AllowedFormats)

		for round := 0; round <= snap.Retry.MaxRetries && !committed; round++ {
			if bootstrapTries > snap.Streaming.BootstrapRetries {
				break
			}
			progressed := false

			for _, target := range candidates {
				if committed {
					break
				}
				if !d.Translators.HasResponseTranslator(target, desc.SourceFormat) {
					continue
				}
				auth := d.Router.Pick(target, model, tried)
				if auth == nil {
					continue
				}
				tried[auth.ID] = true

				at := d.prepareAttempt(snap, desc, target, auth, model, payloadBytes)
				debugAttempts = append(debugAttempts, fmt.Sprintf("%s@%s", model, target))

				exec := d.Executors.For(target)
				result, execErr := exec.ExecuteStream(ctx, auth, at.req)
				if execErr != nil {
					lastErr = execErr
					d.handleRetryError(auth.ID, execErr)
					bootstrapTries++
					progressed = true
					continue
				}

				if onDebug != nil {
					onDebug(StreamDebugInfo{
						Provider:   string(target),
						Model:      at.resolvedModel,
						Credential: auth.Name,
						Attempts:   debugAttempts,
					})
				}

				wroteAny, streamErr := d.pumpStream(w, desc.SourceFormat, target, at.resolvedModel, desc.Raw, result)
				if wroteAny {
					committed = true
				}
				if streamErr == nil {
					return nil
				}
				if committed {
					// At least one event reached the client: the stream is
					// committed and cannot be retried further.
					w.WriteError(streamErr)
					return streamErr
				}
				lastErr = streamErr
				bootstrapTries++
				progressed = true
			}

			if !progressed {
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = gwerrors.New(gwerrors.KindNoCredentials, "no credentials available")
	}
	log.WithField("attempts", debugAttempts).Debugf("dispatch stream: exhausted, last error: %v", lastErr)
	return lastErr
}

// pumpStream drains result.Chunks, translating each upstream event into
// client-format lines and writing them via w. The SSE status line and
// headers are emitted lazily, on the first line actually written, so a
// bootstrap failure never reaches the client. It reports whether at least
// one line was written ("committed") and any error encountered.
func (d *Dispatcher) pumpStream(w *sse.Writer, sourceFormat, target config.Format, resolvedModel string, raw []byte, result executor.StreamResult) (bool, error) {
	state := &translator.State{}
	started := false

	for chunk := range result.Chunks {
		if chunk.Err != nil {
			return started, chunk.Err
		}

		lines, err := d.Translators.TranslateStream(target, sourceFormat, resolvedModel, raw, chunk.EventType, chunk.Data, state)
		if err != nil {
			return started, gwerrors.Wrap(gwerrors.KindTranslation, "translate stream chunk", err)
		}
		if len(lines) == 0 {
			continue
		}
		if !started {
			w.Start()
			started = true
		}
		for _, line := range lines {
			w.WriteLine(line)
		}
	}

	return started, nil
}
