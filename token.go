package apns

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderToken holds the provider authentication token credentials:
// the ES256 signing key issued in your developer account together with
// its Key ID and your Team ID.
//
// If the provider token signing key is suspected to be compromised, you
// can revoke the key from your online developer account. You can issue
// a new key pair and generate new tokens with the new private key. For
// maximum security, it is recommended to close connections to APNs that
// were using the tokens signed with the revoked key and reconnect
// before using tokens signed with the new key.
type ProviderToken struct {
	teamID     [10]byte          // 10 character Team ID
	keyID      [10]byte          // 10 character Key ID
	privateKey *ecdsa.PrivateKey // private key for sign
	jwt        string            // cached signed token
	created    time.Time         // cache creation time
	mu         sync.RWMutex
}

// NewProviderToken returns a new ProviderToken with the established
// team and key IDs. Both values can be obtained from your developer
// account.
func NewProviderToken(teamID, keyID string) (*ProviderToken, error) {
	pt := new(ProviderToken)
	if len(teamID) != 10 {
		return nil, &CredentialError{Kind: InvalidFormat,
			Err: fmt.Errorf("team ID must be 10 characters, got %d", len(teamID))}
	}
	copy(pt.teamID[:], teamID)
	if len(keyID) != 10 {
		return nil, &CredentialError{Kind: InvalidFormat,
			Err: fmt.Errorf("key ID must be 10 characters, got %d", len(keyID))}
	}
	copy(pt.keyID[:], keyID)
	return pt, nil
}

// LoadPrivateKey loads the signing key from a PKCS#8 PEM file (the .p8
// file downloaded from the developer account).
func (pt *ProviderToken) LoadPrivateKey(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return pt.SetPrivateKeyPEM(data)
}

// SetPrivateKeyPEM parses a PKCS#8 or EC private key in PEM form and
// installs it as the signing key. Only ES256 (P-256 ECDSA) keys are
// accepted; anything else fails with UnsupportedAlgorithm.
func (pt *ProviderToken) SetPrivateKeyPEM(data []byte) error {
	block, _ := pem.Decode(data)
	if block != nil {
		data = block.Bytes
	}
	private, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		if key, ecErr := x509.ParseECPrivateKey(data); ecErr == nil {
			return pt.setKey(key)
		}
		return &CredentialError{Kind: InvalidFormat, Err: err}
	}
	key, ok := private.(*ecdsa.PrivateKey)
	if !ok {
		return &CredentialError{Kind: UnsupportedAlgorithm,
			Err: fmt.Errorf("signing key is %T, ECDSA P-256 required", private)}
	}
	return pt.setKey(key)
}

// SetPrivateKey installs an EC private key in ASN.1 DER form.
func (pt *ProviderToken) SetPrivateKey(der []byte) error {
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return &CredentialError{Kind: InvalidFormat, Err: err}
	}
	return pt.setKey(key)
}

func (pt *ProviderToken) setKey(key *ecdsa.PrivateKey) error {
	if key.Curve.Params().Name != "P-256" {
		return &CredentialError{Kind: UnsupportedAlgorithm,
			Err: fmt.Errorf("curve %s, ES256 requires P-256", key.Curve.Params().Name)}
	}
	pt.mu.Lock()
	pt.jwt = ""
	pt.created = time.Time{}
	pt.privateKey = key
	pt.mu.Unlock()
	return nil
}

// String returns a string with the team and key IDs.
func (pt *ProviderToken) String() string {
	return fmt.Sprintf("%s:%s", pt.teamID, pt.keyID)
}

// JWT returns the signed authorization token in JWT format, specified
// on the request as "bearer <provider token>".
//
// In order to ensure security, APNs requires new tokens to be generated
// periodically. The new token has an updated Issued At claim indicating
// the time when the token was generated. APNs rejects push messages
// with an ExpiredProviderToken error if the token issue timestamp is
// not within the last hour, so the cached token is re-signed once it is
// older than TokenLifeTime.
//
// Regeneration is synchronized: concurrent callers observe a single
// consistent token rather than racing to re-sign it redundantly.
func (pt *ProviderToken) JWT() (string, error) {
	pt.mu.RLock()
	token := pt.jwt
	created := pt.created
	pt.mu.RUnlock()
	if token != "" && time.Since(created) <= TokenLifeTime {
		return token, nil
	}
	return pt.refreshJWT()
}

func (pt *ProviderToken) refreshJWT() (string, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	// another caller may have refreshed while we waited for the lock
	if pt.jwt != "" && time.Since(pt.created) <= TokenLifeTime {
		return pt.jwt, nil
	}
	if pt.privateKey == nil {
		return "", &CredentialError{Kind: InvalidFormat,
			Err: fmt.Errorf("provider token has no private key")}
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": string(pt.teamID[:]),
		"iat": now.Unix(),
	})
	token.Header["kid"] = string(pt.keyID[:])
	signed, err := token.SignedString(pt.privateKey)
	if err != nil {
		return "", &CredentialError{Kind: UnsupportedAlgorithm, Err: err}
	}
	pt.jwt = signed
	pt.created = now
	return signed, nil
}

// invalidate drops the cached token so the next JWT call re-signs,
// used when the server rejects a token the local cache still considers
// fresh.
func (pt *ProviderToken) invalidate() {
	pt.mu.Lock()
	pt.jwt = ""
	pt.created = time.Time{}
	pt.mu.Unlock()
}

type jsonProviderToken struct {
	TeamID     string `json:"teamId"`
	KeyID      string `json:"keyId"`
	PrivateKey []byte `json:"privateKey"`
}

// MarshalJSON returns the description of the ProviderToken using the
// JSON format.
func (pt *ProviderToken) MarshalJSON() ([]byte, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	privateKey, err := x509.MarshalECPrivateKey(pt.privateKey)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&jsonProviderToken{
		TeamID:     string(pt.teamID[:]),
		KeyID:      string(pt.keyID[:]),
		PrivateKey: privateKey,
	})
}

// UnmarshalJSON restores the ProviderToken from a JSON format.
func (pt *ProviderToken) UnmarshalJSON(data []byte) error {
	var jsonPT jsonProviderToken
	if err := json.Unmarshal(data, &jsonPT); err != nil {
		return err
	}
	newPT, err := NewProviderToken(jsonPT.TeamID, jsonPT.KeyID)
	if err != nil {
		return err
	}
	*pt = ProviderToken{teamID: newPT.teamID, keyID: newPT.keyID}
	return pt.SetPrivateKey(jsonPT.PrivateKey)
}

const providerTokenPEMType = "APNS TOKEN"

// WritePEM stores the ProviderToken in PEM format.
func (pt *ProviderToken) WritePEM(out io.Writer) error {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	privateKey, err := x509.MarshalECPrivateKey(pt.privateKey)
	if err != nil {
		return err
	}
	block := &pem.Block{
		Type: providerTokenPEMType,
		Headers: map[string]string{
			"teamID": string(pt.teamID[:]),
			"keyID":  string(pt.keyID[:]),
		},
		Bytes: privateKey,
	}
	return pem.Encode(out, block)
}

// ProviderTokenFromPEM parses and returns the description of the
// ProviderToken from PEM format.
func ProviderTokenFromPEM(data []byte) (*ProviderToken, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != providerTokenPEMType ||
		block.Headers == nil {
		return nil, &CredentialError{Kind: InvalidFormat,
			Err: fmt.Errorf("not an %s PEM block", providerTokenPEMType)}
	}
	pt, err := NewProviderToken(block.Headers["teamID"], block.Headers["keyID"])
	if err != nil {
		return nil, err
	}
	if err = pt.SetPrivateKey(block.Bytes); err != nil {
		return nil, err
	}
	return pt, nil
}
