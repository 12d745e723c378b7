package utils

import "strings"

func Contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}

// fileNameReplacer mirrors the character substitution the arrs apply when
// building file names, so sanitized source titles compare equal to the grab's
// file stem.
var fileNameReplacer = strings.NewReplacer(
	"\\", "+",
	"/", "+",
	"<", "",
	">", "",
	"?", "!",
	"*", "-",
	":", "",
	"|", "",
	"\"", "",
)

func CleanFileName(name string) string {
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// Intersperse round-robins two slices: a0, b0, a1, b1, ... with the longer
// tail appended.
func Intersperse[E any](a, b []E) []E {
	result := make([]E, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			result = append(result, a[i])
		}
		if i < len(b) {
			result = append(result, b[i])
		}
	}
	return result
}
