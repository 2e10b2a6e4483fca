package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mnehpets/rpcdispatch/jsonrpc"
)

// maxTokenLen bounds the amount of caller-controlled data we will decode
// for a sealed token.
const maxTokenLen = 4096

// KeySize is the key length, in bytes, accepted by the Sealer.
const KeySize = chacha20poly1305.KeySize

// DefaultTokenPeriod is the lifetime of tokens sealed without an explicit expiry.
const DefaultTokenPeriod = 12 * time.Hour

// sealedAAD binds sealed tokens to this use, so ciphertext produced under the
// same key for another purpose cannot be replayed as a token.
var sealedAAD = []byte("rpcdispatch.token.v1")

// sealedClaims is the CBOR payload inside a sealed token.
type sealedClaims struct {
	Subject string    `cbor:"1,keyasint"`
	Level   string    `cbor:"2,keyasint"`
	Expires time.Time `cbor:"3,keyasint"`
}

// Sealer issues and verifies opaque tokens: CBOR claims sealed with
// XChaCha20-Poly1305, formatted as "<keyID>.<base64url>".
//
// Keys are selected by ID so that old keys can keep verifying while a new
// one is used for sealing.
type Sealer struct {
	keyID string
	aeads map[string]cipher.AEAD
	now   func() time.Time
}

// NewSealer creates a Sealer sealing with keys[keyID].
func NewSealer(keyID string, keys map[string][]byte) (*Sealer, error) {
	if keys == nil {
		return nil, errors.New("auth: keys must not be nil")
	}
	if _, ok := keys[keyID]; !ok {
		return nil, errors.New("auth: keyID not found in keys")
	}
	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, k := range keys {
		if strings.Contains(id, ".") {
			return nil, fmt.Errorf("auth: key id %q must not contain '.'", id)
		}
		aead, err := chacha20poly1305.NewX(k)
		if err != nil {
			return nil, fmt.Errorf("auth: invalid key %s: %w", id, err)
		}
		aeads[id] = aead
	}
	return &Sealer{keyID: keyID, aeads: aeads, now: time.Now}, nil
}

// Seal issues a token for cred. A zero Expires means DefaultTokenPeriod from now.
func (s *Sealer) Seal(cred Credential) (string, error) {
	if cred.Expires.IsZero() {
		cred.Expires = s.now().Add(DefaultTokenPeriod)
	}
	plain, err := cbor.Marshal(sealedClaims{
		Subject: cred.Subject,
		Level:   string(cred.Level),
		Expires: cred.Expires.UTC(),
	})
	if err != nil {
		return "", err
	}

	aead := s.aeads[s.keyID]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, sealedAAD)
	return s.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Verify implements Verifier.
func (s *Sealer) Verify(_ context.Context, token string) (Credential, error) {
	if len(token) == 0 || len(token) > maxTokenLen {
		return Credential{}, invalidToken("bad token length")
	}
	keyID, encB64, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || encB64 == "" {
		return Credential{}, invalidToken("bad token format")
	}
	aead, ok := s.aeads[keyID]
	if !ok {
		return Credential{}, invalidToken("unknown key %q", keyID)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encB64)
	if err != nil {
		return Credential{}, invalidToken("bad token encoding")
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return Credential{}, invalidToken("token too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, sealedAAD)
	if err != nil {
		return Credential{}, invalidToken("token authentication failed")
	}

	var claims sealedClaims
	if err := cbor.Unmarshal(plain, &claims); err != nil {
		return Credential{}, invalidToken("bad token claims")
	}
	if !s.now().Before(claims.Expires) {
		return Credential{}, invalidToken("token expired")
	}
	return Credential{
		Subject: claims.Subject,
		Level:   jsonrpc.Level(claims.Level),
		Expires: claims.Expires,
	}, nil
}
