package executor

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

func TestMergeHeadersExtraOverridesAuthStatic(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.invalid", nil)
	auth := &gwauth.AuthRecord{Headers: map[string]string{"x-custom": "from-auth"}}

	mergeHeaders(req, auth, map[string]string{"x-custom": "from-extra"})
	assert.Equal(t, "from-extra", req.Header.Get("x-custom"))
}

func TestMergeHeadersNilAuthIsNoOp(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.invalid", nil)
	assert.NotPanics(t, func() { mergeHeaders(req, nil, map[string]string{"a": "b"}) })
	assert.Equal(t, "b", req.Header.Get("a"))
}

func TestExtractPassthroughOnlyCopiesConfiguredPresentHeaders(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("x-request-id", "1")
	resp.Header.Set("x-other", "2")

	out := extractPassthrough(resp, []string{"x-request-id", "x-missing"})
	assert.Equal(t, map[string]string{"x-request-id": "1"}, out)
}
