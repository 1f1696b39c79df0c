package protocol

import (
	"unicode/utf8"

	"github.com/ajitpratap0/linewire/pkg/errors"
)

// Characters that can never appear in a table, symbol, or column name. The
// set mirrors the server's file-name restrictions, so a bad name is rejected
// here instead of corrupting a partition directory on the other side.
func forbiddenNameChar(r rune) bool {
	switch r {
	case ' ', '?', '.', ',', '\'', '"', '\\', '/', ':',
		')', '(', '+', '-', '*', '%', '~', 0:
		return true
	}
	return false
}

// validateName checks a table or column name against the shared naming
// rules: non-empty, at most maxLen bytes, valid UTF-8, no forbidden
// characters, and no byte-order mark anywhere in the string.
func validateName(kind, name string, maxLen int) error {
	if name == "" {
		return errors.Newf(errors.ErrorTypeInvalidName,
			"%s names must have a non-zero length", kind)
	}
	if len(name) > maxLen {
		return errors.Newf(errors.ErrorTypeInvalidName,
			"bad name %q: %s names are limited to %d bytes", name, kind, maxLen)
	}

	for i, r := range name {
		if r == utf8.RuneError {
			return errors.Newf(errors.ErrorTypeInvalidName,
				"bad name %q: invalid UTF-8 at byte position %d", name, i)
		}
		if forbiddenNameChar(r) {
			return errors.Newf(errors.ErrorTypeInvalidName,
				"bad name %q: %s names can't contain a %q character, found at byte position %d",
				name, kind, r, i)
		}
		// Reject ZERO WIDTH NO-BREAK SPACE, aka the UTF-8 BOM, anywhere in
		// the string.
		if r == '\ufeff' {
			return errors.Newf(errors.ErrorTypeInvalidName,
				"bad name %q: %s names can't contain a UTF-8 BOM character, found at byte position %d",
				name, kind, i)
		}
	}

	return nil
}
