package domain

// PlaceholderTitle is the title used for synthetic metadata.
const PlaceholderTitle = "YouTube Video"

// MediaMetadata describes a source video as reported by the extractor.
type MediaMetadata struct {
	Title           string
	DurationSeconds float64
	Uploader        string
	ViewCount       int64
	UploadDate      string
	ThumbnailURL    string
	Formats         []StreamDescriptor

	// Placeholder is true only for data produced by PlaceholderMetadata.
	Placeholder bool
}

// StreamDescriptor describes one retrievable rendition.
type StreamDescriptor struct {
	FormatID    string
	Container   string
	Height      int
	Width       int
	BitrateKbps float64
	SizeBytes   int64
	VideoCodec  string
	AudioCodec  string
}

// HasVideo returns true if the stream carries a video track.
func (s StreamDescriptor) HasVideo() bool {
	return s.VideoCodec != ""
}

// HasAudio returns true if the stream carries an audio track.
func (s StreamDescriptor) HasAudio() bool {
	return s.AudioCodec != ""
}

// IsAudioOnly returns true for audio renditions without video.
func (s StreamDescriptor) IsAudioOnly() bool {
	return !s.HasVideo() && s.HasAudio()
}

// PlaceholderMetadata returns the synthetic metadata used when the extractor
// cannot describe a source and the caller chooses to degrade.
func PlaceholderMetadata() *MediaMetadata {
	return &MediaMetadata{
		Title: PlaceholderTitle,
		Formats: []StreamDescriptor{
			{FormatID: "best", Container: "mp4", Height: 720},
			{FormatID: "worst", Container: "mp4", Height: 360},
		},
		Placeholder: true,
	}
}
