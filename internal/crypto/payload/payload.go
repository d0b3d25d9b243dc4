// Package payload provides the optional symmetric encryption stage for chat
// content. When enabled, plaintext never crosses the wire: the ChatPayload
// carries an AEAD-sealed EncContent instead of Content. The relay core still
// routes plaintext internally; sealing happens at the connection edge.
package payload

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/litchat/relay/internal/protocol"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "litchat-payload-v1"

// ErrCiphertextTooShort rejects sealed data shorter than nonce + tag.
var ErrCiphertextTooShort = errors.New("payload: ciphertext too short")

// Cipher seals and opens chat content with ChaCha20-Poly1305 under a key
// derived from the configured passphrase and salt. A nil *Cipher disables
// the stage.
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// New derives the AEAD key via HKDF-SHA256 and builds the cipher.
func New(passphrase, salt string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("payload: passphrase required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init payload aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext, prepending the random nonce.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := data[:chacha20poly1305.NonceSize], data[chacha20poly1305.NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}

// EncryptPayload moves p.Content into p.EncContent. Empty content and
// already-encrypted payloads pass through untouched.
func (c *Cipher) EncryptPayload(p *protocol.ChatPayload) error {
	if c == nil || p.Encrypted || p.Content == "" {
		return nil
	}
	sealed, err := c.Seal([]byte(p.Content))
	if err != nil {
		return err
	}
	p.EncContent = sealed
	p.Encrypted = true
	p.Content = ""
	return nil
}

// DecryptPayload moves p.EncContent back into p.Content. Plaintext payloads
// pass through untouched, so either representation is tolerated on the wire.
func (c *Cipher) DecryptPayload(p *protocol.ChatPayload) error {
	if c == nil || !p.Encrypted {
		return nil
	}
	plain, err := c.Open(p.EncContent)
	if err != nil {
		return err
	}
	p.Content = string(plain)
	p.Encrypted = false
	p.EncContent = nil
	return nil
}
