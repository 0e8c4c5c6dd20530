package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Select picks the stream closest to the requested quality.
//
// Video requests consider mp4 streams with a known height; audio requests
// consider audio-only streams with a known bitrate. Candidates are ordered by
// absolute distance from the target and ties keep input order, so the
// earliest of equally close streams wins. The nearest stream is chosen even
// when it is far from the target (2k falls back to 1080p if no 1440p
// exists). domain.ErrQualityUnavailable is returned when nothing qualifies
// or when the request has no numeric target.
func Select(formats []domain.StreamDescriptor, q domain.QualityRequest) (domain.StreamDescriptor, error) {
	return selectWhere(formats, q, nil)
}

// SelectMuxed is Select restricted to video streams that already carry audio.
func SelectMuxed(formats []domain.StreamDescriptor, q domain.QualityRequest) (domain.StreamDescriptor, error) {
	return selectWhere(formats, q, func(s domain.StreamDescriptor) bool {
		return s.HasAudio()
	})
}

func selectWhere(formats []domain.StreamDescriptor, q domain.QualityRequest, keep func(domain.StreamDescriptor) bool) (domain.StreamDescriptor, error) {
	if q.IsDefault() {
		return domain.StreamDescriptor{}, domain.ErrQualityUnavailable
	}

	value := streamValue(q.Kind)
	candidates := make([]domain.StreamDescriptor, 0, len(formats))
	for _, f := range formats {
		if value(f) <= 0 {
			continue
		}
		if keep != nil && !keep(f) {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return domain.StreamDescriptor{}, domain.ErrQualityUnavailable
	}

	target := float64(q.Target)
	sort.SliceStable(candidates, func(i, j int) bool {
		return math.Abs(value(candidates[i])-target) < math.Abs(value(candidates[j])-target)
	})
	return candidates[0], nil
}

// streamValue returns the dimension compared against the target. Streams
// that fail the kind's filter yield 0.
func streamValue(kind domain.MediaKind) func(domain.StreamDescriptor) float64 {
	if kind == domain.KindAudio {
		return func(s domain.StreamDescriptor) float64 {
			if !s.IsAudioOnly() {
				return 0
			}
			return s.BitrateKbps
		}
	}
	return func(s domain.StreamDescriptor) float64 {
		if s.Container != "mp4" {
			return 0
		}
		return float64(s.Height)
	}
}

// SelectorString returns the extractor format expression used when no
// concrete stream could be selected.
func SelectorString(q domain.QualityRequest) string {
	if q.Kind == domain.KindAudio {
		if q.IsDefault() {
			return "bestaudio/best"
		}
		return fmt.Sprintf("bestaudio[abr>=%d]/bestaudio/best", q.Target)
	}
	return fmt.Sprintf("best[height<=%d][ext=mp4]/best[ext=mp4]/best", q.Target)
}

// VideoOnlySelectorString is the fallback for the video half of a mux.
func VideoOnlySelectorString(q domain.QualityRequest) string {
	return fmt.Sprintf("bestvideo[height<=%d][ext=mp4]/bestvideo[height<=%d]/best[height<=%d]", q.Target, q.Target, q.Target)
}

// MergeSelectorString lets the extractor pick and merge both halves itself.
func MergeSelectorString(q domain.QualityRequest) string {
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", q.Target, q.Target)
}
