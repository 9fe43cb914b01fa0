package download

import "strings"

// filenameFromDisposition returns the text between the first double quote of
// a Content-Disposition value and its final character, or "" when the value
// has no pair of quotes.
func filenameFromDisposition(value string) string {
	first := strings.IndexByte(value, '"')
	if first < 0 || strings.Count(value, `"`) < 2 {
		return ""
	}
	return value[first+1 : len(value)-1]
}
