package persistence

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec implements spec.md §6's layered encode/decode: encode is
// serialize -> encrypt -> compress; decode is decompress -> decrypt ->
// parse. Per §9's redesign flag, both layers are real named algorithms
// (zstd, ChaCha20-Poly1305) or simply disabled — never no-op stubs.
type Codec struct {
	CompressionEnabled bool
	EncryptionKey      []byte // nil disables encryption; else must be 32 bytes
}

// Encode serializes v to JSON, optionally AEAD-encrypts it, then
// optionally compresses it, in that order.
func (c Codec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	if len(c.EncryptionKey) > 0 {
		data, err = encrypt(c.EncryptionKey, data)
		if err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
	}
	if c.CompressionEnabled {
		data, err = compress(data)
		if err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}
	}
	return data, nil
}

// Decode reverses Encode: decompress, then decrypt, then parse into v.
func (c Codec) Decode(data []byte, v any) error {
	var err error
	if c.CompressionEnabled {
		data, err = decompress(data)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
	}
	if len(c.EncryptionKey) > 0 {
		data, err = decrypt(c.EncryptionKey, data)
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var errShortCiphertext = errors.New("persistence: ciphertext shorter than nonce")

func encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, errShortCiphertext
	}
	nonce, encrypted := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, encrypted, nil)
}
