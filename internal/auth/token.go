package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gtank/cryptopasta"
)

// MinKeyLength is the shortest accepted encryption or signing key.
const MinKeyLength = 32

var errMalformedToken = errors.New("malformed token")

// sealer encrypts a session id and appends an HMAC of the ciphertext. The
// cookie value is "<ciphertext>.<signature>", both base64url without padding.
type sealer struct {
	encKey  *[32]byte
	signKey *[32]byte
}

func newSealer(encKey, signKey string) (*sealer, error) {
	ek, err := toKey(encKey)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	sk, err := toKey(signKey)
	if err != nil {
		return nil, fmt.Errorf("session signing key: %w", err)
	}
	return &sealer{encKey: ek, signKey: sk}, nil
}

func (s *sealer) seal(plaintext []byte) (string, error) {
	ciphertext, err := cryptopasta.Encrypt(plaintext, s.encKey)
	if err != nil {
		return "", err
	}
	signature := cryptopasta.GenerateHMAC(ciphertext, s.signKey)
	return base64.RawURLEncoding.EncodeToString(ciphertext) + "." +
		base64.RawURLEncoding.EncodeToString(signature), nil
}

func (s *sealer) open(token string) ([]byte, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, errMalformedToken
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errMalformedToken
	}
	signature, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, errMalformedToken
	}
	if !cryptopasta.CheckHMAC(ciphertext, signature, s.signKey) {
		return nil, errors.New("signature mismatch")
	}
	return cryptopasta.Decrypt(ciphertext, s.encKey)
}

// toKey uses the first 32 bytes of s.
func toKey(s string) (*[32]byte, error) {
	if len(s) < MinKeyLength {
		return nil, fmt.Errorf("want at least %d characters, got %d", MinKeyLength, len(s))
	}
	key := &[32]byte{}
	copy(key[:], s)
	return key, nil
}
