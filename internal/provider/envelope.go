package provider

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEnvelope is returned for ciphertext that does not decrypt to a JSON object.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// EnvelopeCodec decrypts the AES-256-CBC, base64 encoded request envelope
// sent by the game client.
type EnvelopeCodec struct {
	block cipher.Block
	iv    []byte
}

// NewEnvelopeCodec creates a codec from a 32-byte key and 16-byte IV.
func NewEnvelopeCodec(key, iv string) (*EnvelopeCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("envelope key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("envelope iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return &EnvelopeCodec{block: block, iv: []byte(iv)}, nil
}

// Decrypt decodes encrypted into v, which must describe a JSON object.
func (c *EnvelopeCodec) Decrypt(encrypted string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return fmt.Errorf("%w: base64: %v", ErrInvalidEnvelope, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext length %d", ErrInvalidEnvelope, len(raw))
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plain, raw)
	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	trimmed := bytes.TrimSpace(plain)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: not a JSON object", ErrInvalidEnvelope)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

// Encrypt is the inverse of Decrypt. The client side uses the same scheme.
func (c *EnvelopeCodec) Encrypt(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
