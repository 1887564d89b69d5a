package constant

import "strings"

// SupportedExtensions lists the file extensions the decode pipeline can probe,
// in the order the library scanner advertises them.
var SupportedExtensions = []string{".flac", ".mp3", ".wav", ".ogg", ".oga"}

// IsSupportedExtension reports whether ext (including the leading dot, any case)
// names a playable container format.
func IsSupportedExtension(ext string) bool {
	for _, e := range SupportedExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
