package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// PaymentReference builds a provider reference such as EL-1700000000-AB12.
func PaymentReference(prefix string, now time.Time) (string, error) {
	code, err := GenerateCode(2)
	if err != nil {
		return "", fmt.Errorf("payment reference: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Unix(), code), nil
}
