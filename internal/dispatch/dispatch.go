package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/executor"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
	"github.com/wollfoo/ai-gateway/internal/gwerrors"
)

// DispatchNonStream runs the full algorithm of spec §4.9 for a
// non-streaming request and returns the translated client-format body.
func (d *Dispatcher) DispatchNonStream(ctx context.Context, desc Descriptor) (*NonStreamResult, error) {
	snap := d.Store.Get()

	var lastErr error
	var debugAttempts []string

	for _, model := range desc.ModelChain() {
		payloadBytes, err := d.Translators.TranslateRequest(desc.SourceFormat, desc.SourceFormat, model, desc.Raw, desc.Stream)
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

		for round := 0; round <= snap.Retry.MaxRetries; round++ {
			progressed := false

			for _, target := range candidates {
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
				resp, execErr := exec.Execute(ctx, auth, at.req)
				if execErr == nil {
					out, terr := d.Translators.TranslateNonStream(target, desc.SourceFormat, at.resolvedModel, desc.Raw, resp.Payload)
					if terr != nil {
						lastErr = gwerrors.Wrap(gwerrors.KindTranslation, "translate response", terr)
						progressed = true
						continue
					}
					return &NonStreamResult{
						Body:            out,
						Passthrough:     resp.PassthroughVals,
						DebugProvider:   string(target),
						DebugModel:      at.resolvedModel,
						DebugCredential: auth.Name,
						DebugAttempts:   debugAttempts,
					}, nil
				}

				lastErr = execErr
				log.Debugf("dispatch: attempt %s@%s failed: %v", model, target, execErr)
				d.handleRetryError(auth.ID, execErr)
				progressed = true
			}

			if !progressed {
				break
			}
			if round < snap.Retry.MaxRetries {
				sleepBackoff(round, snap.Retry.MaxBackoffSecs)
			}
		}
	}

	if lastErr == nil {
		lastErr = gwerrors.New(gwerrors.KindNoCredentials, "no credentials available")
	}
	return nil, lastErr
}

func (d *Dispatcher) prepareAttempt(snap *config.Snapshot, desc Descriptor, target config.Format, auth *gwauth.AuthRecord, model string, payloadBytes []byte) *attempt {
	resolvedModel := auth.ResolveModelID(model)

	translated, err := d.Translators.TranslateRequest(desc.SourceFormat, target, resolvedModel, payloadBytes, desc.Stream)
	if err != nil {
		translated = payloadBytes
	}

	translated, extraHeaders := applyPayloadAndCloak(snap, target, resolvedModel, translated, auth, desc.UserAgent, snap.ClaudeHeaderDefaults)

	req := executor.Request{
		Model:           resolvedModel,
		Payload:         translated,
		SourceFormat:    desc.SourceFormat,
		Stream:          desc.Stream,
		Headers:         extraHeaders,
		OriginalRequest: desc.Raw,
	}
	return &attempt{target: target, auth: auth, resolvedModel: resolvedModel, req: req, extraHeaders: extraHeaders}
}

// handleRetryError sets cooldown on the credential by error kind, per
// spec §4.9 handle_retry_error.
func (d *Dispatcher) handleRetryError(authID string, err error) {
	gerr, ok := err.(*gwerrors.Error)
	if !ok {
		return
	}

	snap := d.Store.Get()
	switch gerr.Kind {
	case gwerrors.KindUpstream:
		var secs int
		switch {
		case gerr.Status == 429:
			secs = snap.Retry.Cooldown429Secs
		case gerr.Status >= 500 && gerr.Status < 600:
			secs = snap.Retry.Cooldown5xxSecs
		default:
			return
		}
		if gerr.RetryAfter > 0 && gerr.RetryAfter < secs {
			secs = gerr.RetryAfter
		}
		d.Router.MarkUnavailable(authID, time.Duration(secs)*time.Second)
	case gwerrors.KindNetwork:
		d.Router.MarkUnavailable(authID, time.Duration(snap.Retry.CooldownNetwork)*time.Second)
	}
}

func sleepBackoff(attempt, maxBackoffSecs int) {
	backoff := 1 << attempt
	if backoff > maxBackoffSecs {
		backoff = maxBackoffSecs
	}
	if backoff <= 0 {
		return
	}
	d := time.Duration(rand.Intn(backoff+1)) * time.Second
	if d > 0 {
		time.Sleep(d)
	}
}
