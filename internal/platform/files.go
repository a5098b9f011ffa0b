package platform

import (
	"os"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions  = 0o755
	DefaultFilePermissions = 0o644
)

// Filename sanitation
const (
	ReplacementChar   = "_"
	MaxFilenameLength = 200
)

// invalidFilenameChars are characters rejected by at least one of the
// supported filesystems (NTFS being the strictest).
var invalidFilenameChars = []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\x00"}

// CreateDirectoryIfNotExists creates the directory and any missing parents.
func CreateDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, DefaultDirPermissions)
	}
	return nil
}

// SanitizeFilename replaces characters that are invalid in file names and
// trims the result to a filesystem-safe length. Control characters are
// replaced as well.
func SanitizeFilename(name string) string {
	sanitized := name
	for _, c := range invalidFilenameChars {
		sanitized = strings.ReplaceAll(sanitized, c, ReplacementChar)
	}

	sanitized = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return []rune(ReplacementChar)[0]
		}
		return r
	}, sanitized)

	// Avoid names that are only dots or whitespace
	sanitized = strings.TrimSpace(sanitized)
	if strings.Trim(sanitized, ".") == "" {
		sanitized = ReplacementChar
	}

	if len(sanitized) > MaxFilenameLength {
		sanitized = sanitized[:MaxFilenameLength]
	}

	return sanitized
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
