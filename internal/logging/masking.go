// Package logging builds the process slog logger and keeps secrets out of log output.
package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces fully masked values.
const Redacted = "[REDACTED]"

// MaskValue redacts a sensitive value based on its attribute name.
//
// Rules:
// - Password/secret/salt/encryption key names: "[REDACTED]" (no partial reveal)
// - Token/access key names: "****" + last4chars (e.g., "****ab3f")
// - Other names: returned unchanged
func MaskValue(name, value string) string {
	lowerName := strings.ToLower(name)

	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		strings.Contains(lowerName, "salt") ||
		strings.Contains(lowerName, "encryptionkey") ||
		strings.Contains(lowerName, "encryptedkey") {
		return Redacted
	}

	if lowerName == "authorization" ||
		lowerName == "accesskey" ||
		lowerName == "access_key" ||
		strings.HasSuffix(lowerName, "token") {
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}

	return value
}

// redactAttr is a slog ReplaceAttr hook applying MaskValue to string attributes.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	masked := MaskValue(a.Key, a.Value.String())
	if masked == a.Value.String() {
		return a
	}
	return slog.String(a.Key, masked)
}
