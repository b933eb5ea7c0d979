package common

import (
	"path/filepath"
	"strings"
)

// maxFilenameLength caps generated filenames, extension included
const maxFilenameLength = 200

var invalidFilenameChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", "\"", "", "/", "", "\\", "", "|", "", "?", "", "*", "",
)

// SanitizeFilename makes a media title safe to use as a filename: reserved
// characters are stripped, spaces become underscores, and the result is
// truncated with the extension preserved.
func SanitizeFilename(name string) string {
	cleaned := invalidFilenameChars.Replace(name)
	cleaned = strings.ReplaceAll(cleaned, " ", "_")

	if len(cleaned) <= maxFilenameLength {
		return cleaned
	}

	ext := filepath.Ext(cleaned)
	base := []rune(strings.TrimSuffix(cleaned, ext))
	keep := maxFilenameLength - len(ext)
	if keep < 0 {
		keep = 0
	}
	if keep > len(base) {
		keep = len(base)
	}
	return string(base[:keep]) + ext
}
