package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/joao-fontenele/orderflow-core/internal/auth"
)

// HeaderEdgeSecret carries the secret shared with the authenticating edge.
const HeaderEdgeSecret = "X-Edge-Secret"

// forwardedHeaders are copied from the edge request to the shop service.
var forwardedHeaders = []string{
	"Content-Type",
	"Idempotency-Key",
}

// identityHeaders are copied only from requests that carry the edge secret.
var identityHeaders = []string{
	auth.HeaderUserID,
	auth.HeaderUserEmail,
	auth.HeaderUserRole,
}

type ServiceProxy struct {
	baseURL string
	client  *http.Client
	secret  string
}

type ProxyOption func(*ServiceProxy)

// WithIdentitySecret lets identity headers through on requests whose
// X-Edge-Secret header matches secret.
func WithIdentitySecret(secret string) ProxyOption {
	return func(p *ServiceProxy) {
		p.secret = secret
	}
}

func NewServiceProxy(baseURL string, client *http.Client, opts ...ProxyOption) *ServiceProxy {
	p := &ServiceProxy{
		baseURL: baseURL,
		client:  client,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForwardRequest replays r against path on the upstream service, keeping the
// query string. The caller's identity headers are kept only when r carries
// the edge secret; the secret itself is never forwarded.
func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	copyHeaders(req.Header, r.Header, forwardedHeaders)
	if p.trusted(r) {
		copyHeaders(req.Header, r.Header, identityHeaders)
	}

	return p.client.Do(req)
}

func (p *ServiceProxy) trusted(r *http.Request) bool {
	if p.secret == "" {
		return false
	}
	got := r.Header.Get(HeaderEdgeSecret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(p.secret)) == 1
}

func copyHeaders(dst, src http.Header, keys []string) {
	for _, h := range keys {
		if v := src.Get(h); v != "" {
			dst.Set(h, v)
		}
	}
}
