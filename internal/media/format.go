package media

import (
	"path"
	"slices"
	"strings"
)

// Extensions accepted on upload, stored upper-case.
var allowedExtensions = []string{".JPEG", ".JPG", ".GIF", ".GIFV", ".PNG", ".BMP", ".TGA"}

// Extension returns the upper-cased extension of filename if it is one of
// the accepted image formats.
func Extension(filename string) (string, error) {
	ext := strings.ToUpper(path.Ext(filename))
	if ext == "" || !slices.Contains(allowedExtensions, ext) {
		return "", ErrUnsupportedFormat
	}

	return ext, nil
}

// validNamespace reports whether s can be used as a single path segment.
func validNamespace(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > 64 {
		return false
	}

	return !strings.ContainsAny(s, `/\`+"\x00")
}
