package receiptvault

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashAlgorithm identifies the digest algorithm used for document and
// artifact hashes.
const HashAlgorithm = "sha256"

// HashBytes returns the lowercase hex SHA-256 digest of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashDocument computes the content digest of a source document's text
// independently from any caller-provided hash. Receipts record both so a
// later dispute can show what the server itself saw.
func HashDocument(text string) string {
	return HashBytes([]byte(text))
}

// HashReader returns the lowercase hex SHA-256 digest of everything read
// from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
