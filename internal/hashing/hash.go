// Package hashing implements C1: canonical content identity and streaming
// BLAKE3 digests of files and byte streams. Grounded on the silobang asset
// service's streamToTempWithHash (zeebo/blake3, io.Copy into a hash.Hash).
package hashing

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
)

// chunkSize is the streaming read size; matches the spec's 8 MiB chunking.
const chunkSize = 8 * 1024 * 1024

// prefix is the canonical hash scheme tag.
const prefix = "blake3:"

// digestHexLen is the expected hex length of a BLAKE3-256 digest.
const digestHexLen = 64

// Canonical formats a raw digest into the canonical "blake3:"+64-hex-lowercase form.
func Canonical(digest []byte) string {
	return prefix + hex.EncodeToString(digest)
}

// Validate reports an error unless s is exactly "blake3:" followed by 64 lowercase
// hex characters.
func Validate(s string) error {
	if !strings.HasPrefix(s, prefix) {
		return apierr.Validation(apierr.CodeInvalidHash, "hash must start with \"blake3:\"")
	}
	hexPart := s[len(prefix):]
	if len(hexPart) != digestHexLen {
		return apierr.Validation(apierr.CodeInvalidHash, fmt.Sprintf("hash digest must be %d hex characters", digestHexLen))
	}
	for _, r := range hexPart {
		isLowerHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
		if !isLowerHex {
			return apierr.Validation(apierr.CodeInvalidHash, "hash digest must be lowercase hex")
		}
	}
	return nil
}

// digestReader streams r through BLAKE3 in fixed-size chunks and returns the
// canonical hash plus the total byte count.
func digestReader(r io.Reader) (string, int64, error) {
	h := blake3.New()
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := h.Write(buf[:n]); err != nil {
				return "", 0, fmt.Errorf("writing to hasher: %w", err)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", 0, apierr.Wrap(apierr.KindTransient, apierr.CodeInternal, "reading input stream", readErr)
		}
	}
	return Canonical(h.Sum(nil)), total, nil
}

// HashFile opens path read-only and streams its full content through BLAKE3,
// restoring nothing afterward since the descriptor is closed on return.
func HashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path) // #nosec G304 -- path is validated by the caller against a configured root
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, apierr.NotFound(fmt.Sprintf("file not found: %s", path))
		}
		return "", 0, apierr.Wrap(apierr.KindTransient, apierr.CodeInternal, "opening file for hashing", err)
	}
	defer f.Close()
	return digestReader(f)
}

// HashBytes hashes an in-memory buffer. The spec describes this as "rewind before
// and after"; since we take a byte slice rather than a shared seekable handle,
// there is no caller-visible position to restore.
func HashBytes(data []byte) (hash string, size int64, err error) {
	return digestReader(bytes.NewReader(data))
}

// HashSeeker hashes the remainder of a seekable stream and restores its original
// offset on completion, per spec §4.1's stream-position contract.
func HashSeeker(rs io.ReadSeeker) (hash string, size int64, err error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", 0, fmt.Errorf("getting current offset: %w", err)
	}
	defer func() {
		_, _ = rs.Seek(start, io.SeekStart)
	}()
	hash, size, err = digestReader(rs)
	return hash, size, err
}
