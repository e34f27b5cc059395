package verifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Transport describes where and how to reach the provider.
type Transport struct {
	// Scheme is "http" or "https". Defaults to "http".
	Scheme string

	// Host defaults to "localhost".
	Host string

	Port int

	// Path is the base path prepended to every interaction path.
	Path string

	// Protocol names a plugin transport ("grpc", "message", ...). Empty
	// means plain HTTP.
	Protocol string
}

func (t Transport) withDefaults() Transport {
	out := t
	if out.Scheme == "" {
		out.Scheme = "http"
	}
	if out.Host == "" {
		out.Host = "localhost"
	}
	return out
}

// BaseURL renders the transport's root URL.
func (t Transport) BaseURL() string {
	t = t.withDefaults()
	host := t.Host
	if t.Port > 0 {
		host = fmt.Sprintf("%s:%d", t.Host, t.Port)
	}
	return fmt.Sprintf("%s://%s%s", t.Scheme, host, strings.TrimSuffix(t.Path, "/"))
}

// newHTTPClient builds the provider client. With useH2C set, requests speak
// HTTP/2 over cleartext connections for providers that serve h2c (gRPC
// gateways and the like); otherwise it is a plain HTTP/1.1 client.
func newHTTPClient(timeout time.Duration, useH2C bool) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if !useH2C {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
