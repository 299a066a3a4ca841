package apns

import (
	"strconv"
	"time"
)

// APNs server hosts.
const (
	HostProduction = "api.push.apple.com"
	HostSandbox    = "api.sandbox.push.apple.com"
	Port           = 443
)

// Endpoint describes an APNs service endpoint. The zero value is not
// usable; use Production or Sandbox.
type Endpoint struct {
	Host    string
	Port    int
	Sandbox bool
}

// Predefined APNs endpoints.
var (
	Production = Endpoint{Host: HostProduction, Port: Port}
	Sandbox    = Endpoint{Host: HostSandbox, Port: Port, Sandbox: true}
)

// Addr returns the endpoint address in host:port form.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = Port
	}
	return e.Host + ":" + strconv.Itoa(port)
}

// String returns the endpoint host.
func (e Endpoint) String() string { return e.Host }

// Maximum serialized payload sizes in bytes. Apple documents 4KB for
// regular notifications and 5KB for VoIP pushes. Kept as vars so a
// deployment can track documentation changes without a new release.
var (
	MaxPayloadSize     = 4096
	MaxVoipPayloadSize = 5120
)

// TokenLifeTime contains the lifetime of the provider authentication
// token, after which it is automatically regenerated.
//
// APNs will reject push messages with an ExpiredProviderToken error if
// the token issue timestamp is not within the last hour, so the cached
// token is renewed with a safety margin.
var TokenLifeTime = time.Minute * 55

// Default connection pool behavior.
var (
	// DefaultMaxConns bounds the number of simultaneously open
	// connections to one endpoint.
	DefaultMaxConns = 4
	// DefaultMaxStreams caps the per-connection stream budget when the
	// server negotiates a larger one.
	DefaultMaxStreams = 500
	// DefaultIdleTimeout describes how long an unused connection is
	// kept before it is drained and evicted. Apple closes idle
	// connections on its side as well; handshakes are expensive, so
	// connections are not closed proactively before this.
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultDialTimeout bounds the TCP connect plus TLS handshake.
	DefaultDialTimeout = 20 * time.Second
)
