package executor

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

// newHTTPClient builds an *http.Client honoring the auth's proxy_url
// (empty string means direct, overriding global; nil falls back to
// globalProxy; http/https/socks5 otherwise), per spec §4.3 step 1.
func newHTTPClient(auth *gwauth.AuthRecord, globalProxy *string, connectTimeout, requestTimeout time.Duration, stream bool) (*http.Client, error) {
	proxyURL := globalProxy
	if auth != nil && auth.ProxyURL != nil {
		proxyURL = auth.ProxyURL
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{DialContext: dialer.DialContext}

	if proxyURL != nil && *proxyURL != "" {
		if err := applyProxy(transport, *proxyURL, dialer); err != nil {
			return nil, err
		}
	}

	// http.Client.Timeout bounds the whole request including reading the
	// body; a streaming response can legitimately run far longer than
	// request_timeout, so it is left unbounded and relies on the caller's
	// context deadline/cancellation instead.
	timeout := requestTimeout
	if stream {
		timeout = 0
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func applyProxy(transport *http.Transport, raw string, dialer *net.Dialer) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		transport.Proxy = http.ProxyURL(u)
	case strings.HasPrefix(raw, "socks5://"):
		d, err := proxy.FromURL(u, dialer)
		if err != nil {
			return err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := d.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return d.Dial(network, addr)
		}
	}
	return nil
}
