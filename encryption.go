package filescan

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// EncryptedPayloads is a PayloadStore wrapper that seals parked content
// with AES-256-GCM. Each payload carries its own random nonce in front of
// the ciphertext.
type EncryptedPayloads struct {
	store PayloadStore
	aead  cipher.AEAD
}

// NewEncryptedPayloads wraps store with a 32 byte key.
func NewEncryptedPayloads(store PayloadStore, key []byte) (*EncryptedPayloads, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (got %d bytes)", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &EncryptedPayloads{store: store, aead: aead}, nil
}

// ParseEncryptionKey decodes a base64 AES-256 key.
func ParseEncryptionKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (got %d bytes)", len(key))
	}
	return key, nil
}

// Put seals data and writes it. The key is bound as additional data so a
// payload cannot be swapped under another key.
func (e *EncryptedPayloads) Put(ctx context.Context, key string, data []byte) error {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(data)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	return e.store.Put(ctx, key, e.aead.Seal(nonce, nonce, data, []byte(key)))
}

// Get reads and opens a sealed payload. Tampered or truncated content
// yields ErrPayloadCorrupt.
func (e *EncryptedPayloads) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	n := e.aead.NonceSize()
	if len(sealed) < n+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: %s: sealed payload too short", ErrPayloadCorrupt, key)
	}
	data, err := e.aead.Open(nil, sealed[:n], sealed[n:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadCorrupt, key, err)
	}
	return data, nil
}

// Delete delegates to the underlying store
func (e *EncryptedPayloads) Delete(ctx context.Context, key string) error {
	return e.store.Delete(ctx, key)
}

// DeletePrefix delegates when the underlying store can sweep.
func (e *EncryptedPayloads) DeletePrefix(ctx context.Context, prefix string) error {
	sw, ok := e.store.(PayloadSweeper)
	if !ok {
		return fmt.Errorf("%w: payload store cannot sweep", ErrNotSupported)
	}
	return sw.DeletePrefix(ctx, prefix)
}

var (
	_ PayloadStore   = (*EncryptedPayloads)(nil)
	_ PayloadSweeper = (*EncryptedPayloads)(nil)
)
