package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/dispatch"
	"github.com/wollfoo/ai-gateway/internal/gwerrors"
	"github.com/wollfoo/ai-gateway/internal/sse"
)

// parseDescriptor builds a dispatch.Descriptor from a client request body in
// sourceFormat, honoring the "model"/"models" fallback chain and the
// "stream" flag (spec §3, §4.1).
func parseDescriptor(c *gin.Context, sourceFormat config.Format, allowed []config.Format) (dispatch.Descriptor, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dispatch.Descriptor{}, gwerrors.Wrap(gwerrors.KindPayloadTooLarge, "request body exceeds body_limit_mb", err)
		}
		return dispatch.Descriptor{}, gwerrors.Wrap(gwerrors.KindBadRequest, "read request body", err)
	}
	if !gjson.ValidBytes(raw) {
		return dispatch.Descriptor{}, gwerrors.New(gwerrors.KindBadRequest, "request body is not valid JSON")
	}

	root := gjson.ParseBytes(raw)

	desc := dispatch.Descriptor{
		SourceFormat:   sourceFormat,
		Model:          root.Get("model").String(),
		Stream:         root.Get("stream").Bool(),
		UserAgent:      c.GetHeader("User-Agent"),
		Debug:          isDebugRequest(c),
		Raw:            raw,
		AllowedFormats: allowed,
	}
	if models := root.Get("models"); models.IsArray() {
		for _, m := range models.Array() {
			if s := m.String(); s != "" {
				desc.Models = append(desc.Models, s)
			}
		}
	}
	if desc.Model == "" && len(desc.Models) == 0 {
		return desc, gwerrors.New(gwerrors.KindBadRequest, "request is missing \"model\"")
	}
	return desc, nil
}

func writeGatewayError(c *gin.Context, err error) {
	if gerr, ok := err.(*gwerrors.Error); ok {
		status := gerr.HTTPStatus()
		if gerr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(gerr.RetryAfter))
		}
		c.JSON(status, gin.H{"error": gin.H{"message": gerr.Message, "type": errKindLabel(gerr.Kind)}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error(), "type": "internal_error"}})
}

func errKindLabel(k gwerrors.Kind) string {
	switch k {
	case gwerrors.KindAuth:
		return "authentication_error"
	case gwerrors.KindNoCredentials, gwerrors.KindModelCooldown:
		return "unavailable_error"
	case gwerrors.KindUpstream:
		return "upstream_error"
	case gwerrors.KindNetwork:
		return "network_error"
	case gwerrors.KindTranslation:
		return "translation_error"
	case gwerrors.KindBadRequest:
		return "invalid_request_error"
	case gwerrors.KindModelNotFound:
		return "not_found_error"
	case gwerrors.KindPayloadTooLarge:
		return "invalid_request_error"
	default:
		return "internal_error"
	}
}

func setDebugHeaders(c *gin.Context, provider, model, credential string, attempts []string) {
	c.Header("x-debug-provider", provider)
	c.Header("x-debug-model", model)
	c.Header("x-debug-credential", credential)
	if len(attempts) > 0 {
		c.Header("x-debug-attempts", strings.Join(attempts, ","))
	}
}

// Server bundles the dispatcher with the gin route handlers.
type Server struct {
	Store      *config.Store
	Dispatcher *dispatch.Dispatcher
}

// ChatCompletions implements POST /v1/chat/completions — source format
// openai, any configured upstream format, streaming or not (spec §4.1).
func (s *Server) ChatCompletions(c *gin.Context) {
	desc, err := parseDescriptor(c, config.FormatOpenAI, nil)
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	s.dispatch(c, desc)
}

// ClaudeMessages implements POST /v1/messages — source and target format
// are both claude; no cross-format translation occurs on this route.
func (s *Server) ClaudeMessages(c *gin.Context) {
	desc, err := parseDescriptor(c, config.FormatClaude, []config.Format{config.FormatClaude})
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	s.dispatch(c, desc)
}

// OpenAIResponses implements POST /v1/responses — source openai, target
// restricted to openai/openai-compat, and streaming is explicitly
// unsupported regardless of the request body's "stream" flag.
func (s *Server) OpenAIResponses(c *gin.Context) {
	desc, err := parseDescriptor(c, config.FormatOpenAI, []config.Format{config.FormatOpenAI, config.FormatOpenAICompat})
	if err != nil {
		writeGatewayError(c, err)
		return
	}
	if desc.Stream {
		writeGatewayError(c, gwerrors.New(gwerrors.KindBadRequest, "/v1/responses does not support streaming"))
		return
	}
	s.dispatchNonStream(c, desc)
}

// ListModels implements GET /v1/models, shaped like the OpenAI models list.
func (s *Server) ListModels(c *gin.Context) {
	models := s.Dispatcher.Router.AllModels()
	data := make([]gin.H, 0, len(models))
	for _, m := range models {
		data = append(data, gin.H{"id": m.ID, "object": "model", "created": m.Created, "owned_by": m.OwnedBy})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (s *Server) dispatch(c *gin.Context, desc dispatch.Descriptor) {
	if desc.Stream {
		s.dispatchStream(c, desc)
		return
	}
	s.dispatchNonStream(c, desc)
}

func (s *Server) dispatchNonStream(c *gin.Context, desc dispatch.Descriptor) {
	keepaliveSecs := s.Store.Get().NonStreamKeepaliveSec
	if keepaliveSecs <= 0 {
		result, err := s.Dispatcher.DispatchNonStream(c.Request.Context(), desc)
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		s.writeNonStreamResult(c, desc, result)
		return
	}

	type outcome struct {
		result *dispatch.NonStreamResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.Dispatcher.DispatchNonStream(c.Request.Context(), desc)
		done <- outcome{result, err}
	}()

	interval := time.Duration(keepaliveSecs) * time.Second
	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			writeGatewayError(c, out.err)
			return
		}
		s.writeNonStreamResult(c, desc, out.result)
		return
	case <-timer.C:
	}

	// The upstream call outlasted the keepalive interval: commit a 200
	// response now and pad the chunked body with single whitespace bytes
	// (accepted as leading JSON whitespace by any conforming parser) until
	// the real payload arrives, per spec. Once the first byte is written
	// response headers are locked, so passthrough/debug headers cannot be
	// attached to a padded response.
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)
	c.Writer.Write([]byte(" "))
	if flusher != nil {
		flusher.Flush()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				log.WithField("request_id", c.GetString("request_id")).Errorf("non-stream dispatch failed after keepalive padding began: %v", out.err)
				return
			}
			c.Writer.Write([]byte(out.result.Body))
			return
		case <-ticker.C:
			c.Writer.Write([]byte(" "))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) writeNonStreamResult(c *gin.Context, desc dispatch.Descriptor, result *dispatch.NonStreamResult) {
	if desc.Debug {
		setDebugHeaders(c, result.DebugProvider, result.DebugModel, result.DebugCredential, result.DebugAttempts)
	}
	for k, v := range result.Passthrough {
		c.Header(k, v)
	}
	c.Data(http.StatusOK, "application/json", []byte(result.Body))
}

func (s *Server) dispatchStream(c *gin.Context, desc dispatch.Descriptor) {
	snap := s.Store.Get()
	w := sse.NewWriter(c.Writer, snap.Streaming.KeepaliveSeconds)
	defer w.Stop()

	var onDebug func(dispatch.StreamDebugInfo)
	if desc.Debug {
		onDebug = func(info dispatch.StreamDebugInfo) {
			setDebugHeaders(c, info.Provider, info.Model, info.Credential, info.Attempts)
		}
	}

	if err := s.Dispatcher.DispatchStream(c.Request.Context(), desc, w, onDebug); err != nil && !w.Started() {
		// Nothing was ever written: the SSE headers are not yet on the
		// wire and a normal JSON error response is still possible.
		writeGatewayError(c, err)
	}
}
