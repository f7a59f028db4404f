package host

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// DefaultMACPrefix is the VirtualBox OUI used for generated MAC addresses
const DefaultMACPrefix = "080027"

// GenerateMAC generates a random MAC address with the given prefix, in the
// colon-less form VirtualBox expects
func GenerateMAC(prefix string) (string, error) {
	bytes := make([]byte, 3)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return fmt.Sprintf("%s%02X%02X%02X", strings.ToUpper(prefix), bytes[0], bytes[1], bytes[2]), nil
}

// ValidateMAC validates that a MAC address is twelve hex digits, with or
// without colon separators
func ValidateMAC(mac string) bool {
	mac = strings.ReplaceAll(mac, ":", "")
	if len(mac) != 12 {
		return false
	}

	for _, c := range mac {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}

	return true
}
