package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

func GetSHA1(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))

}

func GetMD5(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// HashFile streams a restored file through MD5 or SHA1.
func HashFile(path string, algorithm string) (string, error) {
	var hasher hash.Hash
	switch strings.ToUpper(algorithm) {
	case "MD5":
		hasher = md5.New()
	case "SHA1":
		hasher = sha1.New()
	default:
		return "", fmt.Errorf("unsupported hash %s, use MD5 or SHA1", algorithm)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
