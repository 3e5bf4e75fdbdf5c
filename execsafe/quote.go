package execsafe

import (
	"regexp"
	"strings"
)

var (
	shellMeta = regexp.MustCompile("[;&|$`<>()\n\r]")
	safeWord  = regexp.MustCompile(`^[\w@%+=:,./-]+$`)
)

// ValidateArgument reports whether arg is free of shell metacharacters and
// NUL bytes.
func ValidateArgument(arg string) bool {
	return !shellMeta.MatchString(arg) && !strings.ContainsRune(arg, 0)
}

// Quote returns arg quoted for a POSIX shell. Words made only of safe
// characters are returned unchanged; anything else is wrapped in single
// quotes with embedded quotes spelled '"'"'.
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if safeWord.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}
