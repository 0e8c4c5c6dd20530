package domain

import (
	"net/url"
	"strings"
)

// SourceReference is a validated video page URL.
type SourceReference string

// String returns the URL.
func (s SourceReference) String() string {
	return string(s)
}

var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
	"www.youtu.be":      true,
}

// ParseSource validates raw as a YouTube URL. A missing scheme is treated as https.
func ParseSource(raw string) (SourceReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return "", ErrInvalidSource
	}

	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", ErrInvalidSource
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidSource
	}
	if !allowedHosts[strings.ToLower(u.Hostname())] {
		return "", ErrInvalidSource
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", ErrInvalidSource
	}

	return SourceReference(u.String()), nil
}

// LooksLikeSource reports whether text mentions a YouTube host at all, valid or not.
func LooksLikeSource(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be")
}
