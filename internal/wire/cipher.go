package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// CipherMode identifies one of the four AES block modes the handshake may
// negotiate (§4.1).
type CipherMode string

const (
	CipherCBC CipherMode = "CBC"
	CipherGCM CipherMode = "GCM"
	CipherCFB CipherMode = "CFB"
	CipherCTR CipherMode = "CTR"
)

const (
	pbkdf2KeyLen = 32 // AES-256
	saltLen      = 16
)

// DeriveSessionKey derives the per-session AES key from the configured
// shared secret and a per-session salt exchanged in the first chunk,
// via PBKDF2-HMAC-SHA256 (§4.1).
func DeriveSessionKey(secret string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), salt, iterations, pbkdf2KeyLen, sha256.New)
}

// NewSalt generates a fresh per-session salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Cipher encrypts/decrypts chunk payloads independently, one chunk at a
// time. GCM implementations use the chunk's frame header as associated
// data (§4.1). A failed authentication must cause immediate connection
// termination by the caller — Open returns an error, never partial
// plaintext.
type Cipher interface {
	Mode() CipherMode
	Seal(header, plaintext []byte) ([]byte, error)
	Open(header, ciphertext []byte) ([]byte, error)
}

// NewCipher builds a Cipher for the given mode and session key.
func NewCipher(mode CipherMode, key []byte) (Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new AES cipher: %w", err)
	}
	switch mode {
	case CipherGCM:
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("new GCM: %w", err)
		}
		return &gcmCipher{aead: gcm}, nil
	case CipherCBC:
		return &cbcCipher{block: block}, nil
	case CipherCFB:
		return &streamCipher{block: block, mode: CipherCFB}, nil
	case CipherCTR:
		return &streamCipher{block: block, mode: CipherCTR}, nil
	default:
		return nil, fmt.Errorf("unsupported cipher mode %q", mode)
	}
}

// gcmCipher implements AEAD sealing with the frame header as associated
// data, per §4.1: "GCM uses the frame header as associated data."
type gcmCipher struct {
	aead cipher.AEAD
}

func (c *gcmCipher) Mode() CipherMode { return CipherGCM }

func (c *gcmCipher) Seal(header, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, header)
	return append(nonce, sealed...), nil
}

func (c *gcmCipher) Open(header, ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, body := ciphertext[:ns], ciphertext[ns:]
	plain, err := c.aead.Open(nil, nonce, body, header)
	if err != nil {
		return nil, fmt.Errorf("GCM authentication failed: %w", err)
	}
	return plain, nil
}

// cbcCipher implements AES-CBC with a random per-chunk IV prefixed to the
// ciphertext. CBC has no built-in authentication; an upstream MAC or the
// transport's own integrity guarantee is assumed for this mode, same as
// the spec leaves it (§4.1 names CBC as a legal mode without mandating an
// additional MAC).
type cbcCipher struct {
	block cipher.Block
}

func (c *cbcCipher) Mode() CipherMode { return CipherCBC }

func (c *cbcCipher) Seal(_, plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, c.block.BlockSize())
	iv := make([]byte, c.block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate IV: %w", err)
	}
	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[len(iv):], padded)
	return out, nil
}

func (c *cbcCipher) Open(_, ciphertext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ciphertext) < bs || (len(ciphertext)-bs)%bs != 0 {
		return nil, fmt.Errorf("malformed CBC ciphertext")
	}
	iv, body := ciphertext[:bs], ciphertext[bs:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, body)
	return pkcs7Unpad(out)
}

// streamCipher implements CFB and CTR, both stream ciphers over a random
// per-chunk IV.
type streamCipher struct {
	block cipher.Block
	mode  CipherMode
}

func (c *streamCipher) Mode() CipherMode { return c.mode }

func (c *streamCipher) newStream(iv []byte, encrypt bool) cipher.Stream {
	if c.mode == CipherCTR {
		return cipher.NewCTR(c.block, iv)
	}
	if encrypt {
		return cipher.NewCFBEncrypter(c.block, iv)
	}
	return cipher.NewCFBDecrypter(c.block, iv)
}

func (c *streamCipher) Seal(_, plaintext []byte) ([]byte, error) {
	iv := make([]byte, c.block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate IV: %w", err)
	}
	out := make([]byte, len(iv)+len(plaintext))
	copy(out, iv)
	c.newStream(iv, true).XORKeyStream(out[len(iv):], plaintext)
	return out, nil
}

func (c *streamCipher) Open(_, ciphertext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ciphertext) < bs {
		return nil, fmt.Errorf("ciphertext shorter than IV")
	}
	iv, body := ciphertext[:bs], ciphertext[bs:]
	out := make([]byte, len(body))
	c.newStream(iv, false).XORKeyStream(out, body)
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty padded data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("invalid PKCS7 padding")
	}
	return data[:len(data)-padLen], nil
}
