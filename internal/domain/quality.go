package domain

import (
	"strings"
)

// MediaKind distinguishes audio from video downloads.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// QualityRequest is a parsed quality label.
type QualityRequest struct {
	Kind  MediaKind
	Label string
	// Target is a height in pixels for video or a bitrate in kbps for audio.
	// Zero means "use the source default".
	Target int
}

// IsDefault reports whether the request carries no numeric target.
func (q QualityRequest) IsDefault() bool {
	return q.Target == 0
}

// VideoQualities lists video labels from highest to lowest.
var VideoQualities = []string{"4k", "2k", "1080p", "720p", "480p", "360p"}

// AudioQualities lists audio labels from highest to lowest, "best" last.
var AudioQualities = []string{"320", "256", "192", "128", "best"}

var videoTargets = map[string]int{
	"4k":    2160,
	"2k":    1440,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

var audioTargets = map[string]int{
	"320":  320,
	"256":  256,
	"192":  192,
	"128":  128,
	"best": 0,
}

// DefaultQuality returns the label used when a request omits one.
func DefaultQuality(kind MediaKind) string {
	if kind == KindAudio {
		return "best"
	}
	return "720p"
}

// ParseQuality maps a label to a QualityRequest. An empty label selects the
// kind's default.
func ParseQuality(kind MediaKind, label string) (QualityRequest, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		l = DefaultQuality(kind)
	}

	switch kind {
	case KindVideo:
		if _, ok := videoTargets[l]; !ok {
			if _, ok := videoTargets[l+"p"]; ok {
				l += "p"
			}
		}
		target, ok := videoTargets[l]
		if !ok {
			return QualityRequest{}, ErrInvalidQuality
		}
		return QualityRequest{Kind: kind, Label: l, Target: target}, nil

	case KindAudio:
		l = strings.TrimSuffix(l, "kbps")
		l = strings.TrimSuffix(l, "k")
		target, ok := audioTargets[l]
		if !ok {
			return QualityRequest{}, ErrInvalidQuality
		}
		return QualityRequest{Kind: kind, Label: l, Target: target}, nil
	}

	return QualityRequest{}, ErrInvalidQuality
}
