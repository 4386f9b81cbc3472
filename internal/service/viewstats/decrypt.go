package viewstats

import (
	"crypto/aes"
	"crypto/cipher"

	apperrors "github.com/trendwatch/trendwatch-go/pkg/errors"
)

// decryptPayload opens an AES-GCM sealed response body. The provider uses a
// fixed key and nonce for every response; the GCM tag is appended to the
// ciphertext as usual.
func decryptPayload(key, nonce, payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewDecryptionError("invalid decryption key", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, apperrors.NewDecryptionError("invalid nonce length", err)
	}

	if len(payload) < gcm.Overhead() {
		return nil, apperrors.NewDecryptionError("payload shorter than auth tag", nil)
	}

	plaintext, err := gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, apperrors.NewDecryptionError("payload authentication failed", err)
	}

	return plaintext, nil
}
