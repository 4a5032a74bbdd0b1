package megacloud

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Decrypt converts a source payload into its playable variants. Unencrypted
// payloads pass through unchanged. Encrypted payloads go through an XOR
// transform keyed by the client key, then symmetric decryption is attempted
// under a fixed order of key/data combinations until one yields structured
// output. The order is load-bearing and must not be rearranged: upstream key
// rotation behavior is unknown.
func Decrypt(payload *SourcePayload, clientKey, decryptKey string) ([]SourceVariant, error) {
	if !payload.Encrypted {
		return parseVariants(payload.Sources)
	}

	ciphertext, ok := payload.SourcesText()
	if !ok {
		return nil, ErrMalformedPayload
	}

	xored := xorTransform(ciphertext, clientKey)

	attempts := []struct {
		data string
		key  string
	}{
		{xored, decryptKey},
		{ciphertext, decryptKey},
		{xored, clientKey},
	}

	for _, a := range attempts {
		plain, err := decryptOpenSSL(a.data, a.key)
		if err != nil {
			continue
		}
		if looksStructured(plain) {
			return parseVariants([]byte(plain))
		}
	}

	return nil, ErrDecryption
}

// FirstFile picks the canonical playable URL from a variant list.
func FirstFile(variants []SourceVariant) string {
	if len(variants) == 0 {
		return ""
	}
	return variants[0].File
}

// xorTransform XORs each byte of the ciphertext against the repeating key.
func xorTransform(data, key string) string {
	if key == "" {
		return data
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i++ {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return string(out)
}

// looksStructured reports whether decrypted text parses as a serialized
// list or object, which is the success criterion for a decryption attempt.
func looksStructured(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

// decryptOpenSSL decrypts a base64 ciphertext in the OpenSSL envelope
// format the upstream player uses: "Salted__" + 8-byte salt, key and IV
// derived from the passphrase via chained MD5 (EVP_BytesToKey), then
// AES-256-CBC with PKCS#7 padding.
func decryptOpenSSL(encrypted, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", errors.Wrap(err, "ciphertext is not valid base64")
	}

	if len(raw) < 16 || !bytes.HasPrefix(raw, []byte("Salted__")) {
		return "", errors.New("ciphertext missing salt header")
	}

	salt := raw[8:16]
	body := raw[16:]

	key, iv := evpBytesToKey([]byte(passphrase), salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not a multiple of the block size")
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// evpBytesToKey derives a 32-byte AES key and 16-byte IV from a passphrase
// and salt using the MD5-based OpenSSL KDF.
func evpBytesToKey(passphrase, salt []byte) (key, iv []byte) {
	password := append(append([]byte{}, passphrase...), salt...)

	var derived []byte
	digest := password
	for len(derived) < 48 {
		sum := md5.Sum(digest)
		derived = append(derived, sum[:]...)
		digest = append(sum[:], password...)
	}

	return derived[:32], derived[32:48]
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

// parseVariants accepts either a list of variants or a single variant object.
func parseVariants(raw json.RawMessage) ([]SourceVariant, error) {
	var list []SourceVariant
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single SourceVariant
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.Wrap(err, "unexpected sources shape")
	}
	return []SourceVariant{single}, nil
}
