// Package names normalises user supplied backup and profile names.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/savekeeper/savekeeper/pkg/errclass"
)

// forbidden are characters no common filesystem accepts in a directory name.
const forbidden = `<>:"/\|?*`

// SanitizeBackup turns a requested backup name into a safe directory name.
// The result is NFC normalised, stripped of forbidden and control characters and trimmed.
func SanitizeBackup(name string) (string, error) {
	name = norm.NFC.String(name)
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbidden, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)

	switch cleaned {
	case "":
		return "", errclass.ErrNameInvalid.WithMessage("backup name must not be empty")
	case ".", "..":
		return "", errclass.ErrNameInvalid.WithMessagef("backup name must not be %q", cleaned)
	}
	return cleaned, nil
}

// ValidateProfile returns the trimmed, normalised profile name.
func ValidateProfile(name string) (string, error) {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return "", errclass.ErrNameInvalid.WithMessage("profile name must not be empty")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", errclass.ErrNameInvalid.WithMessagef("profile name must not contain control characters: %q", name)
		}
	}
	return name, nil
}
