package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// TransportConfig contains connection limits of the transports created by the package.
type TransportConfig struct {
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	MaxConnsPerHost       int
	// HTTP2PingTimeout is used only by the HTTP2 transport, for health checks of idle connections.
	HTTP2PingTimeout time.Duration
}

// DefaultTransportConfig returns limits suitable for most API servers.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:           3 * time.Second,
		KeepAlive:             10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		MaxConnsPerHost:       32,
		HTTP2PingTimeout:      3 * time.Second,
	}
}

// DefaultTransport returns http.Transport with the default limits, HTTP2 is negotiated if the server supports it.
func DefaultTransport() http.RoundTripper {
	return DefaultTransportConfig().Transport()
}

// HTTP2Transport returns the HTTP2 only transport with the default limits.
func HTTP2Transport() http.RoundTripper {
	return DefaultTransportConfig().HTTP2Transport()
}

func (c TransportConfig) Transport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           c.dialer().DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
		MaxConnsPerHost:       c.MaxConnsPerHost,
		MaxIdleConnsPerHost:   c.MaxConnsPerHost,
	}
}

func (c TransportConfig) HTTP2Transport() http.RoundTripper {
	netDialer := c.dialer()
	return &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			return (&tls.Dialer{NetDialer: netDialer, Config: cfg}).DialContext(ctx, network, addr)
		},
		ReadIdleTimeout:  c.HTTP2PingTimeout,
		PingTimeout:      c.HTTP2PingTimeout,
		WriteByteTimeout: c.HTTP2PingTimeout,
	}
}

func (c TransportConfig) dialer() *net.Dialer {
	return &net.Dialer{Timeout: c.DialTimeout, KeepAlive: c.KeepAlive}
}
