package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

const (
	MinKeyLength = 8
	MaxKeyLength = 255
)

func ValidateKey(key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return fmt.Errorf("%w: length must be between %d and %d", ErrKeyInvalid, MinKeyLength, MaxKeyLength)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return fmt.Errorf("%w: printable ASCII only", ErrKeyInvalid)
		}
	}
	return nil
}

// Fingerprint hashes the canonical form of a JSON body: object keys sorted at
// every depth, whitespace dropped, numbers kept as written.
func Fingerprint(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", fmt.Errorf("%w: trailing data", ErrInvalidBody)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func writeCanonical(buf *bytes.Buffer, value any) error {
	// encoding/json emits map keys sorted, which is the canonical order
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}
