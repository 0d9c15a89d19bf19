package archive

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// DefaultChecksumFunction is used to calculate member hashes.
const DefaultChecksumFunction crypto.Hash = crypto.SHA512

var errHashUnavailable = errors.New("hash function unavailable")

// Checksum returns the checksum of everything read from r.
func Checksum(r io.Reader) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// FileChecksum returns the checksum of a file on disk.
func FileChecksum(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = f.Close()
	}()

	return Checksum(f)
}

// EncodeChecksum renders a checksum the way manifests store it.
func EncodeChecksum(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}
