// Package checksum computes SHA-256 digests of uploaded objects. Storage backends
// record the digest next to each profile picture and serve it back as the ETag.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Reader hashes everything read through it.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	h := sha256.New()
	return &Reader{r: io.TeeReader(r, h), h: h}
}

func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// Sum returns the lowercase hex digest of the bytes read so far.
func (cr *Reader) Sum() string {
	return hex.EncodeToString(cr.h.Sum(nil))
}

// Len returns the number of bytes read so far.
func (cr *Reader) Len() int64 {
	return cr.n
}

// CalculateSHA256 drains reader and returns its hex digest.
func CalculateSHA256(reader io.Reader) (string, error) {
	cr := NewReader(reader)
	if _, err := io.Copy(io.Discard, cr); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return cr.Sum(), nil
}
