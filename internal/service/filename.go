package service

import (
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

const maxFilenameRunes = 100

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
}

// ContentType returns the MIME type for a file extension without the dot.
func ContentType(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SanitizeFilename strips characters that are invalid in filenames on common
// platforms, collapses whitespace and caps the length.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		if r < 0x20 {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")

	runes := []rune(name)
	if len(runes) > maxFilenameRunes {
		name = strings.TrimSpace(string(runes[:maxFilenameRunes]))
	}
	return name
}

// DeliveryFilename builds the name offered to the caller for a download.
func DeliveryFilename(title string, kind domain.MediaKind, ext string) string {
	name := SanitizeFilename(title)
	if name == "" || title == domain.PlaceholderTitle {
		name = string(kind)
	}
	return name + "." + ext
}
