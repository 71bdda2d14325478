package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator returns a random short code of the given length
type CodeGenerator func(length int) (string, error)

// RandomCode draws each character uniformly from [A-Za-z0-9] using crypto/rand
func RandomCode(length int) (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
