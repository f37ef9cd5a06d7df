package domain

import "strings"

// MaskKey keeps the last four characters of a license key or API key so it
// can be logged without disclosing the credential.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
