package application

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	apiKeyScheme    = "lsk"
	apiKeyPrefixLen = 12
)

// generateLicenseKey returns LIC-XXXX-XXXX-XXXX-XXXX over 64 random bits.
func generateLicenseKey() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	h := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("LIC-%s-%s-%s-%s", h[0:4], h[4:8], h[8:12], h[12:16]), nil
}

// generateAPIKey returns lsk_<prefix>_<secret>. The prefix is stored in
// clear for lookup, the whole key only as a hash.
func generateAPIKey() (key, prefix string, err error) {
	p := make([]byte, apiKeyPrefixLen/2)
	if _, err := rand.Read(p); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	prefix = hex.EncodeToString(p)
	key = apiKeyScheme + "_" + prefix + "_" + base64.RawURLEncoding.EncodeToString(secret)
	return key, prefix, nil
}

func parseAPIKeyPrefix(key string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(key), "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyScheme || len(parts[1]) != apiKeyPrefixLen || parts[2] == "" {
		return "", false
	}
	return parts[1], true
}
