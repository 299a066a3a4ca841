package apns

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Configuration errors.
var (
	ErrNoCredential   = errors.New("apns: no certificate or provider token configured")
	ErrTwoCredentials = errors.New("apns: certificate and provider token are mutually exclusive")
	ErrClientClosed   = errors.New("apns: client is closed")
)

// Config describes a client configuration. Exactly one of Certificate
// and ProviderToken must be set; everything else has usable defaults.
type Config struct {
	// Certificate enables certificate authentication: the identity is
	// presented during the TLS handshake of every connection.
	Certificate *CertificateCredential
	// ProviderToken enables token authentication: each request carries
	// an authorization header with a signed bearer token.
	ProviderToken *ProviderToken

	// Sandbox selects the development environment endpoint.
	Sandbox bool
	// Endpoint overrides the host selection entirely. Leave nil to
	// derive it from Sandbox.
	Endpoint *Endpoint

	// TLSConfig is the explicit TLS provider configuration cloned for
	// every dial. Server name, ALPN and the client identity are filled
	// in by the client; the system trust store verifies the peer
	// unless RootCAs is set here.
	TLSConfig *tls.Config

	// MaxConns bounds simultaneously open connections to the endpoint.
	MaxConns int
	// MaxStreams caps the per-connection stream budget when the server
	// negotiates a larger one.
	MaxStreams int
	// GrowPolicy decides between opening additional connections and
	// queueing when all stream budgets are exhausted.
	GrowPolicy GrowPolicy
	// IdleTimeout evicts connections without activity.
	IdleTimeout time.Duration
	// DialTimeout bounds the TCP connect plus TLS handshake.
	DialTimeout time.Duration

	// Retry is the backoff schedule used by Send. The zero value
	// selects DefaultRetryPolicy.
	Retry RetryPolicy

	// Logger receives structured connection and delivery events.
	// The zero value logs nothing.
	Logger zerolog.Logger

	// DialTLS replaces the dial function; intended for tests and
	// proxies. The returned connection must already speak h2.
	DialTLS func(ctx context.Context, network, addr string, conf *tls.Config) (net.Conn, error)
}

// credential returns the configured client identity.
func (conf *Config) credential() Credential {
	if conf.Certificate != nil {
		return conf.Certificate
	}
	return conf.ProviderToken
}

// endpoint resolves the effective endpoint.
func (conf *Config) endpoint() Endpoint {
	if conf.Endpoint != nil {
		return *conf.Endpoint
	}
	if conf.Sandbox {
		return Sandbox
	}
	return Production
}

// tlsConfig clones the configured TLS settings and pins the fields the
// protocol requires.
func (conf *Config) tlsConfig() *tls.Config {
	var c *tls.Config
	if conf.TLSConfig != nil {
		c = conf.TLSConfig.Clone()
	} else {
		c = new(tls.Config)
	}
	if c.ServerName == "" {
		c.ServerName = conf.endpoint().Host
	}
	c.NextProtos = []string{"h2"}
	if c.MinVersion < tls.VersionTLS12 {
		c.MinVersion = tls.VersionTLS12
	}
	return c
}

func (conf *Config) dialContext(ctx context.Context, network, addr string, tlsConf *tls.Config) (net.Conn, error) {
	if conf.DialTLS != nil {
		return conf.DialTLS(ctx, network, addr, tlsConf)
	}
	return defaultDialContext(ctx, network, addr, tlsConf)
}

// validate checks the credential mode and fills defaults in place.
func (conf *Config) validate() error {
	if conf.Certificate == nil && conf.ProviderToken == nil {
		return ErrNoCredential
	}
	if conf.Certificate != nil && conf.ProviderToken != nil {
		return ErrTwoCredentials
	}
	if conf.MaxConns <= 0 {
		conf.MaxConns = DefaultMaxConns
	}
	if conf.MaxStreams <= 0 {
		conf.MaxStreams = DefaultMaxStreams
	}
	if conf.IdleTimeout <= 0 {
		conf.IdleTimeout = DefaultIdleTimeout
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = DefaultDialTimeout
	}
	if conf.Retry == (RetryPolicy{}) {
		conf.Retry = DefaultRetryPolicy
	}
	return nil
}
