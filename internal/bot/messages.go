package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

const (
	msgNeedURL       = "❌ Please send a YouTube URL first!"
	msgInvalidURL    = "❌ Invalid YouTube URL format. Please send a valid YouTube link."
	msgReprompt      = "❌ Please select a valid option number or use /cancel to start over."
	msgCancelled     = "❌ Operation cancelled. Session cleared."
	msgFetchingInfo  = "🔍 Getting video information..."
	msgInfoFailed    = "❌ Failed to get video information. Please check the URL and try again."
	msgDownloadRetry = "Please try again or use /cancel to start over."
)

const welcomeText = `🎬 Welcome to ytgrabba!

I can download YouTube videos and audio for you.

Commands:
/start - Show this welcome message
/help - Show detailed help
/info - Get video information
/audio - Download audio with quality selection
/video - Download video with resolution selection
/formats - Show available video formats
/audioquality - Show audio quality options
/status - Check bot status
/cancel - Cancel current operation

Quick start:
1. Send me a YouTube URL
2. Choose /audio or /video
3. Reply with the number of the quality you want

Just send me a YouTube link to get started!`

const helpText = `📖 How to use ytgrabba

Send any YouTube URL (youtube.com or youtu.be), then use a command:

/info - Title, duration and uploader
/audio - Download MP3 audio, then reply 1-5 to pick the bitrate
/video - Download MP4 video, then reply 1-6 to pick the resolution
/formats - Which resolutions this video offers
/audioquality - Audio quality guide

Tips:
• Send the URL first, then use commands
• The URL is kept, so you can download several qualities
• Audio downloads are faster and smaller
• Video downloads include audio

Limitations:
• File size limit: %s (Telegram limit)
• Processing time depends on video length
• Some videos are unavailable due to restrictions

Use /status to check that the bot is working.`

const audioQualityText = `🎵 Audio quality guide

• 320 kbps: studio quality, ~2.5MB/min
• 256 kbps: high quality, ~2MB/min
• 192 kbps: good quality, ~1.5MB/min
• 128 kbps: standard quality, ~1MB/min
• Best: the source's original bitrate

Use /audio, then reply with the number.`

// audioOptions are offered by number, in display order.
var audioOptions = []struct {
	Label string
	Text  string
}{
	{"320", "320 kbps MP3 - highest quality (~2.5MB/min)"},
	{"256", "256 kbps MP3 - high quality (~2MB/min)"},
	{"192", "192 kbps MP3 - good quality (~1.5MB/min)"},
	{"128", "128 kbps MP3 - standard quality (~1MB/min)"},
	{"best", "Best available - original bitrate"},
}

var videoOptions = []struct {
	Label string
	Text  string
}{
	{"4k", "4K (2160p)"},
	{"2k", "2K (1440p)"},
	{"1080p", "1080p Full HD"},
	{"720p", "720p HD"},
	{"480p", "480p"},
	{"360p", "360p"},
}

func urlReceivedText(url domain.SourceReference) string {
	return fmt.Sprintf(`✅ YouTube URL received!

🔗 %s

What would you like to do?
/info - Get video information
/audio - Download audio (with quality selection)
/video - Download video (with resolution selection)
/formats - Show available video formats
/audioquality - Show audio quality guide

Tip: use /info first to see video details!`, url)
}

func selectionText(kind domain.MediaKind) string {
	var b strings.Builder
	if kind == domain.KindAudio {
		b.WriteString("🎵 Select audio quality:\n\n")
		for i, o := range audioOptions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, o.Text)
		}
		fmt.Fprintf(&b, "\nReply with a number (1-%d).", len(audioOptions))
		return b.String()
	}

	b.WriteString("🎥 Select video resolution:\n\n")
	for i, o := range videoOptions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o.Text)
	}
	fmt.Fprintf(&b, "\nReply with a number (1-%d).", len(videoOptions))
	return b.String()
}

func infoText(meta *domain.MediaMetadata) string {
	var b strings.Builder
	b.WriteString("📺 Video information\n\n")
	fmt.Fprintf(&b, "🎬 Title: %s\n", displayTitle(meta))
	if meta.Uploader != "" {
		fmt.Fprintf(&b, "👤 Uploader: %s\n", meta.Uploader)
	}
	if meta.DurationSeconds > 0 {
		fmt.Fprintf(&b, "⏱️ Duration: %s\n", formatDuration(meta.DurationSeconds))
	}
	if meta.ViewCount > 0 {
		fmt.Fprintf(&b, "👁️ Views: %s\n", humanize.Comma(meta.ViewCount))
	}
	b.WriteString(`
Available actions:
/audio - Download MP3 audio (with quality selection)
/video - Download MP4 video (with resolution selection)
/formats - Show all quality options
/audioquality - Show audio quality guide`)
	return b.String()
}

func statusText(uptime time.Duration, sessions int, dirReady bool, heapBytes uint64) string {
	dir := "Ready"
	if !dirReady {
		dir = "Error"
	}
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	return fmt.Sprintf(`✅ Bot status: online

⏱️ Uptime: %dh %dm
💾 Active sessions: %d
📁 Downloads directory: %s
🧠 Memory usage: %s

All systems operational!`, hours, minutes, sessions, dir, humanize.Bytes(heapBytes))
}

func tooLargeText(size, limit int64) string {
	return fmt.Sprintf("❌ The file is %s, above the %s upload limit. Try a lower quality.",
		humanize.Bytes(uint64(size)), humanize.Bytes(uint64(limit)))
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatSize renders a stream size, which the extractor does not always know.
func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(bytes))
}

func displayTitle(meta *domain.MediaMetadata) string {
	if meta.Title == "" {
		return "(untitled)"
	}
	return meta.Title
}
