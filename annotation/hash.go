package annotation

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// HashFile returns the hex SHA-256 of a file, the id images are keyed by
func HashFile(filepath string) (string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
