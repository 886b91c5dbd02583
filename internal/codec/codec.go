package codec

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/keystore"
)

// ErrDecryption indicates a restore-path failure: the key for the
// artifact is missing or the ciphertext is malformed.
var ErrDecryption = errors.New("decryption failure")

// Payload is the serializable content of one backup artifact.
type Payload map[string]interface{}

// Codec turns a backup payload into final artifact bytes and back.
// The pipeline order is fixed: serialize, compress, encrypt. Compression
// and encryption are individually toggleable by configuration.
type Codec struct {
	keys        *keystore.Store
	compression config.CompressionConfig
	encryption  config.EncryptionConfig
}

// New creates a codec bound to a key store and the engine configuration.
func New(keys *keystore.Store, compression config.CompressionConfig, encryption config.EncryptionConfig) *Codec {
	return &Codec{
		keys:        keys,
		compression: compression,
		encryption:  encryption,
	}
}

// Encode serializes the payload, compresses it if enabled, and encrypts
// it with the per-artifact key. The random GCM nonce is prefixed to the
// ciphertext.
func (c *Codec) Encode(payload Payload, artifactID string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	if c.compression.Enabled {
		data, err = c.compress(data)
		if err != nil {
			return nil, err
		}
	}

	if !c.encryption.Enabled {
		return data, nil
	}

	key, err := c.keys.Key(artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain key: %w", err)
	}

	return encrypt(data, key)
}

// Decode is the exact inverse of Encode.
func (c *Codec) Decode(data []byte, artifactID string) (Payload, error) {
	var err error

	if c.encryption.Enabled {
		key, ok := c.keys.Lookup(artifactID)
		if !ok {
			return nil, fmt.Errorf("%w: no key for artifact %s", ErrDecryption, artifactID)
		}

		data, err = decrypt(data, key)
		if err != nil {
			return nil, err
		}
	}

	if c.compression.Enabled {
		data, err = c.decompress(data)
		if err != nil {
			return nil, err
		}
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to deserialize payload: %w", err)
	}

	return payload, nil
}

func (c *Codec) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, normalizeLevel(c.compression.Level))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize compression: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *Codec) decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed payload: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}

	return out, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return plaintext, nil
}

func normalizeLevel(level int) int {
	if level == 0 {
		return 6
	}
	if level < 1 {
		return 1
	}
	if level > 9 {
		return 9
	}
	return level
}
