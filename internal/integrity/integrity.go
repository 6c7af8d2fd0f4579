// Package integrity implements the per-file MD5 and manifest-level
// HMAC-SHA256 checks the core relies on to gate an apply.
package integrity

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"otaupdate/internal/manifest"
)

// DefaultMD5ChunkSize matches the source spec's default hashing chunk size.
const DefaultMD5ChunkSize = 512

// HashFile streams a file's content through MD5 in chunkSize increments and
// returns the lowercase-hex digest. Never reads the whole file into memory.
func HashFile(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultMD5ChunkSize
	}
	h := md5.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyMD5 compares an expected manifest MD5 against the digest of r. An
// empty expected hash means the manifest carried no MD5 for this entry;
// verification is skipped and ok reports true with skipped=true.
func VerifyMD5(r io.Reader, expected string, chunkSize int) (ok bool, skipped bool, actual string, err error) {
	if expected == "" {
		return true, true, "", nil
	}
	actual, err = HashFile(r, chunkSize)
	if err != nil {
		return false, false, "", err
	}
	return strings.EqualFold(actual, expected), false, actual, nil
}

// SignManifest computes the HMAC-SHA256 signature over the manifest's
// canonical bytes (signature field excluded) using key.
func SignManifest(m *manifest.Manifest, key []byte, signatureField string) (string, error) {
	canon, err := manifest.CanonicalBytes(m, signatureField)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canon)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyManifestSignature recomputes the HMAC over the raw manifest bytes
// (with the signature field stripped) and compares it against the
// manifest's carried signature. rawBytes is the manifest's original wire
// bytes, not a re-encoding of the parsed struct, so the comparison covers
// exactly what was transmitted.
func VerifyManifestSignature(rawBytes []byte, signature string, key []byte, signatureField string) (bool, error) {
	canon, err := manifest.Canonicalize(rawBytes, signatureField)
	if err != nil {
		return false, fmt.Errorf("canonicalize manifest: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canon)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(expected, got), nil
}
