package apns

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pkcs12"
)

// testKeyPairPEM builds a self-signed certificate the way the Apple
// developer portal shapes provider certificates: the bundle ID lives
// in the UID attribute of the subject.
func testKeyPairPEM(t *testing.T, bundleID string) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Apple Push Services: " + bundleID,
			Organization: []string{"Example Org"},
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: typeBundle, Value: bundleID},
			},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template,
		&key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestLoadCertificatePEM(t *testing.T) {
	certPEM, keyPEM := testKeyPairPEM(t, "com.example.app")
	cred, err := LoadCertificatePEM(certPEM, keyPEM)
	require.NoError(t, err)
	require.NotNil(t, cred.Certificate.Leaf)
	require.NotNil(t, cred.Info)
	assert.Equal(t, "com.example.app", cred.Info.BundleID)
	assert.Equal(t, "Example Org", cred.Info.OrgName)
	assert.False(t, cred.Info.IsApple)
	assert.True(t, cred.Info.Support("com.example.app"))
	assert.False(t, cred.Info.Support("com.example.other"))
}

func TestLoadCertificatePEMBad(t *testing.T) {
	var credErr *CredentialError
	_, err := LoadCertificatePEM([]byte("nope"), []byte("nope"))
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, InvalidFormat, credErr.Kind)

	// mismatched pair
	certPEM, _ := testKeyPairPEM(t, "com.example.app")
	_, otherKey := testKeyPairPEM(t, "com.example.app")
	_, err = LoadCertificatePEM(certPEM, otherKey)
	assert.ErrorAs(t, err, &credErr)
}

func TestLoadCertificateCorrupted(t *testing.T) {
	// a corrupted container classifies, it never aborts the process
	var credErr *CredentialError
	_, err := LoadCertificate([]byte("definitely not PKCS#12"), "secret")
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, InvalidFormat, credErr.Kind)
}

func TestLoadCertificateFileMissing(t *testing.T) {
	_, err := LoadCertificateFile("does-not-exist.p12", "secret")
	assert.Error(t, err)
}

func TestClassifyPKCS12(t *testing.T) {
	assert.Equal(t, WrongPassphrase,
		classifyPKCS12(pkcs12.ErrIncorrectPassword).Kind)
	assert.Equal(t, WrongPassphrase,
		classifyPKCS12(pkcs12.ErrDecryption).Kind)
	assert.Equal(t, UnsupportedAlgorithm,
		classifyPKCS12(pkcs12.NotImplementedError("pbe")).Kind)
	assert.Equal(t, InvalidFormat,
		classifyPKCS12(assert.AnError).Kind)
}

func TestCertificateCredentialIdentity(t *testing.T) {
	certPEM, keyPEM := testKeyPairPEM(t, "com.example.app")
	cred, err := LoadCertificatePEM(certPEM, keyPEM)
	require.NoError(t, err)
	auth, err := cred.authContext(time.Now())
	require.NoError(t, err)
	require.Len(t, auth.Certificates, 1)
	assert.Empty(t, auth.Authorization)
	assert.Contains(t, cred.identity(), "com.example.app")
}
