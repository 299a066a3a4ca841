package apns

import (
	"crypto/tls"
	"time"
)

// Credential is a client identity used to authenticate against APNs:
// either a provider certificate presented during the TLS handshake or
// a provider authentication token attached per request. A Credential
// is loaded once at client construction and outlives every connection
// built from it.
type Credential interface {
	// authContext returns the authentication material valid at the
	// given time. Token credentials may re-sign here; certificate
	// identity is immutable for the process lifetime.
	authContext(now time.Time) (*AuthContext, error)
	// identity returns a stable string identifying the credential,
	// used to key connection pooling.
	identity() string
}

// AuthContext is the per-request authentication material produced from
// a Credential: the TLS identity to present during the handshake, or
// the authorization header value, depending on the mode.
type AuthContext struct {
	// Certificates is non-empty in certificate mode and presented to
	// the server during the TLS handshake.
	Certificates []tls.Certificate
	// Authorization carries "bearer <jwt>" in token mode and is empty
	// otherwise.
	Authorization string
}

// CertificateCredential is a provider certificate identity: the leaf
// certificate, its private key and any intermediate chain, as loaded
// from a PKCS#12 container or a PEM pair.
type CertificateCredential struct {
	Certificate tls.Certificate
	Info        *CertificateInfo // parsed leaf details, may be nil
}

func (c *CertificateCredential) authContext(time.Time) (*AuthContext, error) {
	return &AuthContext{Certificates: []tls.Certificate{c.Certificate}}, nil
}

func (c *CertificateCredential) identity() string {
	if c.Info != nil {
		return "cert:" + c.Info.CName
	}
	return "cert"
}

func (pt *ProviderToken) authContext(now time.Time) (*AuthContext, error) {
	token, err := pt.JWT()
	if err != nil {
		return nil, err
	}
	return &AuthContext{Authorization: "bearer " + token}, nil
}

func (pt *ProviderToken) identity() string { return "token:" + pt.String() }
