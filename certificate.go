package apns

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// LoadCertificate parses a PKCS#12 certificate container (.p12) and
// returns the provider certificate credential it holds: the leaf
// certificate, its private key and any intermediate chain.
//
// A malformed container or an incorrect passphrase is classified and
// returned as a *CredentialError; loading never panics.
func LoadCertificate(data []byte, password string) (*CertificateCredential, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, classifyPKCS12(err)
	}
	var (
		certs [][]byte
		leaf  *x509.Certificate
		key   any
	)
	for _, block := range blocks {
		switch {
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, &CredentialError{Kind: InvalidFormat, Err: err}
			}
			if !cert.IsCA && leaf == nil {
				leaf = cert
				certs = append([][]byte{block.Bytes}, certs...)
			} else {
				certs = append(certs, block.Bytes)
			}
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if key, err = parsePrivateKey(block.Bytes); err != nil {
				return nil, err
			}
		}
	}
	if leaf == nil || key == nil {
		return nil, &CredentialError{Kind: InvalidFormat,
			Err: errors.New("container holds no leaf certificate and private key")}
	}
	cert := tls.Certificate{Certificate: certs, PrivateKey: key, Leaf: leaf}
	return &CertificateCredential{
		Certificate: cert,
		Info:        GetCertificateInfo(cert),
	}, nil
}

// LoadCertificateFile reads and parses a PKCS#12 container from disk.
func LoadCertificateFile(filename, password string) (*CertificateCredential, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return LoadCertificate(data, password)
}

// LoadCertificatePEM builds a certificate credential from a PEM
// certificate/key pair, the format the developer portal exports when
// the certificate and key are kept in separate files.
func LoadCertificatePEM(certPEM, keyPEM []byte) (*CertificateCredential, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, &CredentialError{Kind: InvalidFormat, Err: err}
	}
	if cert.Leaf == nil {
		if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, &CredentialError{Kind: InvalidFormat, Err: err}
		}
	}
	return &CertificateCredential{
		Certificate: cert,
		Info:        GetCertificateInfo(cert),
	}, nil
}

// classifyPKCS12 maps pkcs12 decoder failures onto the credential
// error taxonomy. An incorrect password is reported distinctly from a
// structurally broken container.
func classifyPKCS12(err error) *CredentialError {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return &CredentialError{Kind: WrongPassphrase, Err: err}
	}
	if errors.Is(err, pkcs12.ErrDecryption) {
		return &CredentialError{Kind: WrongPassphrase, Err: err}
	}
	if _, ok := err.(pkcs12.NotImplementedError); ok {
		return &CredentialError{Kind: UnsupportedAlgorithm, Err: err}
	}
	return &CredentialError{Kind: InvalidFormat, Err: err}
}

func parsePrivateKey(der []byte) (any, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, &CredentialError{Kind: UnsupportedAlgorithm, Err: err}
	}
	return key, nil
}

// CertificateInfo describes information about the certificate.
type CertificateInfo struct {
	CName       string    // certificate full name
	OrgName     string    // organization name
	OrgUnit     string    // organization identifier
	Country     string    // country
	BundleID    string    // bundle ID
	Topics      []string  // supported topics
	Development bool      // sandbox support flag
	Production  bool      // production support flag
	IsApple     bool      // certificate signed by Apple flag
	Expire      time.Time // expire date and time
}

// GetCertificateInfo parses and returns information about the
// certificate.
func GetCertificateInfo(certificate tls.Certificate) *CertificateInfo {
	cert := certificate.Leaf
	if cert == nil {
		var err error
		cert, err = x509.ParseCertificate(certificate.Certificate[0])
		if err != nil {
			return nil
		}
	}
	info := &CertificateInfo{
		CName:   cert.Subject.CommonName,
		Expire:  cert.NotAfter,
		IsApple: cert.Issuer.CommonName == appleDevIssuerCN,
	}
	for _, attr := range cert.Subject.Names {
		switch t := attr.Type; {
		case t.Equal(typeOrgName):
			info.OrgName, _ = attr.Value.(string)
		case t.Equal(typeOrgUnit):
			info.OrgUnit, _ = attr.Value.(string)
		case t.Equal(typeBundle):
			info.BundleID, _ = attr.Value.(string)
		case t.Equal(typeCountry):
			info.Country, _ = attr.Value.(string)
		}
	}
	for _, attr := range cert.Extensions {
		switch t := attr.Id; {
		case t.Equal(typeDevelopment):
			info.Development = true
		case t.Equal(typeProduction):
			info.Production = true
		case t.Equal(typeTopics):
			var raw asn1.RawValue // unwrap the root sequence
			if _, err := asn1.Unmarshal(attr.Value, &raw); err != nil {
				continue
			}
			info.Topics = make([]string, 0)
			for rest := raw.Bytes; len(rest) > 0; {
				var err error
				var topic string
				if rest, err = asn1.Unmarshal(rest, &topic); err != nil {
					break
				}
				info.Topics = append(info.Topics, topic)
				var names []string
				if rest, err = asn1.Unmarshal(rest, &names); err != nil {
					break
				}
			}
		}
	}
	return info
}

// Support returns true if the certificate supports the specified
// topic.
func (i CertificateInfo) Support(topic string) bool {
	if len(i.Topics) == 0 {
		return topic == i.BundleID
	}
	for _, name := range i.Topics {
		if name == topic {
			return true
		}
	}
	return false
}

// String returns the certificate CName.
func (i CertificateInfo) String() string {
	return i.CName
}

const appleDevIssuerCN = "Apple Worldwide Developer Relations Certification Authority"

var (
	typeCountry     = asn1.ObjectIdentifier{2, 5, 4, 6}
	typeOrgName     = asn1.ObjectIdentifier{2, 5, 4, 10}
	typeOrgUnit     = asn1.ObjectIdentifier{2, 5, 4, 11}
	typeBundle      = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}
	typeDevelopment = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 3, 1}
	typeProduction  = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 3, 2}
	typeTopics      = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 3, 6}
)
