// Package template personalizes message bodies by substituting the
// recipient name token.
package template

import (
	"strings"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

// Personalize replaces every occurrence of the name token with name.
// Messages without the token pass through unchanged.
func Personalize(message, name string) string {
	return strings.ReplaceAll(message, model.NameToken, name)
}

// ContainsToken reports whether the template references the recipient name.
func ContainsToken(message string) bool {
	return strings.Contains(message, model.NameToken)
}

// IsTokenOnly reports whether the trimmed template is nothing but the name
// token. Such messages send the literal name and skip watermarking.
func IsTokenOnly(message string) bool {
	return strings.TrimSpace(message) == model.NameToken
}
