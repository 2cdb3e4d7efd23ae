package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/oauth2"
)

// ErrCredential is returned when stored tokens cannot be turned into a usable credential.
var ErrCredential = errors.New("credential unavailable")

const keyInfo = "mailcake account tokens v1"

// Gate encrypts provider tokens at rest and resolves them back into OAuth tokens.
type Gate struct {
	key []byte
}

func NewGate(secret string) (*Gate, error) {
	if secret == "" {
		return nil, errors.New("credential: empty secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("credential: derive key: %w", err)
	}
	return &Gate{key: key}, nil
}

// Encrypt seals plaintext. An empty input stays empty.
func (g *Gate) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(g.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (g *Gate) decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(g.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Resolve decrypts the stored token pair. An access token is required; the refresh
// token is optional. A nil expiry with a refresh token present marks the access token
// as expired so the first request refreshes it.
func (g *Gate) Resolve(encryptedAccess, encryptedRefresh string, expiresAt *time.Time) (*oauth2.Token, error) {
	access, err := g.decrypt(encryptedAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: access token: %v", ErrCredential, err)
	}
	if access == "" {
		return nil, fmt.Errorf("%w: no access token stored", ErrCredential)
	}
	refresh, err := g.decrypt(encryptedRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh token: %v", ErrCredential, err)
	}

	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	switch {
	case expiresAt != nil:
		token.Expiry = expiresAt.UTC()
	case refresh != "":
		token.Expiry = time.Now().Add(-time.Minute)
	}
	return token, nil
}
