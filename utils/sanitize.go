package utils

import (
	"path/filepath"
	"strings"
)

// SanitizeHeaderFilename removes characters that can break headers.
func SanitizeHeaderFilename(name string) string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "download"
	}
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.ReplaceAll(clean, "\n", "")
	clean = strings.ReplaceAll(clean, "\"", "")
	return clean
}

// SanitizeFileName reduces an upload name to a single safe path element.
func SanitizeFileName(name string) string {
	clean := SanitizeHeaderFilename(strings.ReplaceAll(name, "\\", "/"))
	clean = filepath.Base(filepath.ToSlash(clean))
	if idx := strings.LastIndex(clean, "/"); idx >= 0 {
		clean = clean[idx+1:]
	}
	clean = strings.ReplaceAll(clean, "\x00", "")
	if clean == "" || clean == "." || clean == ".." {
		return "download"
	}
	return clean
}

// SanitizeNamespace turns a content type such as "text/plain; charset=utf-8"
// into a directory name like "text_plain".
func SanitizeNamespace(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	var b strings.Builder
	for _, r := range ct {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '+', r == '.':
			b.WriteRune(r)
		case r == '/':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "application_octet-stream"
	}
	return out
}
