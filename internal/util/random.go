// Package util provides utility functions for the QuoteFlow application.
package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateOtpCode generates a numeric one-time passcode of the given length
// from crypto/rand.
func GenerateOtpCode(length int) string {
	if length <= 0 {
		return ""
	}
	digits := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(digits) < length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("util.GenerateOtpCode: %v", err))
		}
		for _, b := range buf {
			// 250..255 would skew the modulo; resample those bytes.
			if b >= 250 {
				continue
			}
			digits = append(digits, '0'+b%10)
			if len(digits) == length {
				break
			}
		}
	}
	return string(digits)
}

// HashOtpCode returns the hex SHA-256 digest of an OTP code bound to its
// token, so the plain code is never persisted.
func HashOtpCode(token, code string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", token, code)))
	return hex.EncodeToString(sum[:])
}
