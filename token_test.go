package apns

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProviderToken(t *testing.T) *ProviderToken {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pt, err := NewProviderToken("W23G28NPJW", "67XV3VSJ95")
	require.NoError(t, err)
	require.NoError(t, pt.setKey(key))
	return pt
}

func TestNewProviderToken(t *testing.T) {
	_, err := NewProviderToken("short", "67XV3VSJ95")
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, InvalidFormat, credErr.Kind)

	_, err = NewProviderToken("W23G28NPJW", "bad")
	assert.ErrorAs(t, err, &credErr)

	pt, err := NewProviderToken("W23G28NPJW", "67XV3VSJ95")
	require.NoError(t, err)
	assert.Equal(t, "W23G28NPJW:67XV3VSJ95", pt.String())
}

func TestProviderTokenJWT(t *testing.T) {
	pt := testProviderToken(t)
	signed, err := pt.JWT()
	require.NoError(t, err)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (any, error) {
		return pt.privateKey.Public(), nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, token.Valid)
	assert.Equal(t, "67XV3VSJ95", token.Header["kid"])
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "W23G28NPJW", claims["iss"])
	iat, ok := claims["iat"].(float64)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), time.Unix(int64(iat), 0), time.Minute)
}

func TestProviderTokenJWTCached(t *testing.T) {
	pt := testProviderToken(t)
	first, err := pt.JWT()
	require.NoError(t, err)
	second, err := pt.JWT()
	require.NoError(t, err)
	assert.Equal(t, first, second, "fresh token must be served from cache")
}

func TestProviderTokenJWTRefresh(t *testing.T) {
	pt := testProviderToken(t)
	pt.mu.Lock()
	pt.jwt = "stale"
	pt.created = time.Now().Add(-2 * time.Hour)
	pt.mu.Unlock()

	// concurrent callers must observe exactly one consistent refreshed
	// token, not race to regenerate it redundantly
	const callers = 50
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			token, err := pt.JWT()
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		assert.Equal(t, tokens[0], tokens[i])
	}
	assert.NotEqual(t, "stale", tokens[0])
}

func TestProviderTokenInvalidate(t *testing.T) {
	pt := testProviderToken(t)
	first, err := pt.JWT()
	require.NoError(t, err)
	pt.invalidate()
	second, err := pt.JWT()
	require.NoError(t, err)
	// ECDSA signatures are randomized, a re-signed token never matches
	assert.NotEqual(t, first, second)
}

func TestProviderTokenNoKey(t *testing.T) {
	pt, err := NewProviderToken("W23G28NPJW", "67XV3VSJ95")
	require.NoError(t, err)
	_, err = pt.JWT()
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
}

func TestProviderTokenUnsupportedKeys(t *testing.T) {
	var credErr *CredentialError

	pt, err := NewProviderToken("W23G28NPJW", "67XV3VSJ95")
	require.NoError(t, err)

	// RSA keys cannot sign ES256
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	require.NoError(t, err)
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	err = pt.SetPrivateKeyPEM(data)
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, UnsupportedAlgorithm, credErr.Kind)

	// wrong curve
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	err = pt.setKey(p384)
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, UnsupportedAlgorithm, credErr.Kind)

	// garbage is a format error, not a crash
	err = pt.SetPrivateKeyPEM([]byte("not a key"))
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, InvalidFormat, credErr.Kind)
}

func TestProviderTokenPKCS8PEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	pt, err := NewProviderToken("W23G28NPJW", "67XV3VSJ95")
	require.NoError(t, err)
	require.NoError(t, pt.SetPrivateKeyPEM(data))
	_, err = pt.JWT()
	assert.NoError(t, err)
}

func TestProviderTokenPEMRoundTrip(t *testing.T) {
	pt := testProviderToken(t)
	var buf bytes.Buffer
	require.NoError(t, pt.WritePEM(&buf))

	restored, err := ProviderTokenFromPEM(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, pt.String(), restored.String())
	_, err = restored.JWT()
	assert.NoError(t, err)

	_, err = ProviderTokenFromPEM([]byte("garbage"))
	assert.Error(t, err)
}

func TestProviderTokenJSONRoundTrip(t *testing.T) {
	pt := testProviderToken(t)
	data, err := json.Marshal(pt)
	require.NoError(t, err)

	restored := new(ProviderToken)
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, pt.String(), restored.String())
}

func TestProviderTokenAuthContext(t *testing.T) {
	pt := testProviderToken(t)
	auth, err := pt.authContext(time.Now())
	require.NoError(t, err)
	assert.Empty(t, auth.Certificates)
	assert.True(t, len(auth.Authorization) > len("bearer "))
	assert.Equal(t, "bearer ", auth.Authorization[:7])
}
