package auth

import (
	"context"
	"net/http"
)

// TokenSource yields a currently valid access token. *Session implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Transport is an http.RoundTripper that attaches a bearer access token to
// every outgoing request. Token renewal happens inside the source, so
// concurrent requests share one refresh.
type Transport struct {
	Source TokenSource
	Base   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Source.Token(req.Context())
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
