// Package bot implements the chat interface on top of the download services.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/session"
)

// Message is an inbound chat message.
type Message struct {
	ChatID int64
	Text   string
}

// Messenger sends replies to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, path, filename string) error
}

// MetadataFetcher describes a source.
type MetadataFetcher interface {
	Fetch(ctx context.Context, source domain.SourceReference) (*domain.MediaMetadata, error)
}

// Downloader produces files for delivery.
type Downloader interface {
	Audio(ctx context.Context, req service.DownloadRequest) (*service.Delivery, error)
	Video(ctx context.Context, req service.DownloadRequest) (*service.Delivery, error)
}

// DirProvider reports the active download directory.
type DirProvider interface {
	Get() string
}

// Handler routes chat messages.
type Handler struct {
	sessions       *session.Store
	metadata       MetadataFetcher
	downloads      Downloader
	dir            DirProvider
	messenger      Messenger
	maxUploadBytes int64
	started        time.Time
	logger         *slog.Logger
}

// NewHandler creates a new chat handler.
func NewHandler(
	sessions *session.Store,
	metadata MetadataFetcher,
	downloads Downloader,
	dir DirProvider,
	messenger Messenger,
	maxUploadBytes int64,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sessions:       sessions,
		metadata:       metadata,
		downloads:      downloads,
		dir:            dir,
		messenger:      messenger,
		maxUploadBytes: maxUploadBytes,
		started:        time.Now(),
		logger:         logger,
	}
}

// Handle processes one message. Each message is independent; callers may
// run Handle concurrently for different chats.
func (h *Handler) Handle(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(ctx, msg.ChatID, commandName(text))
		return
	}
	h.handleText(ctx, msg.ChatID, text)
}

// commandName returns the lowercased command without the slash, arguments or
// the @botname suffix Telegram adds in groups.
func commandName(text string) string {
	name := strings.Fields(text)[0]
	name = strings.TrimPrefix(name, "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, cmd string) {
	switch cmd {
	case "start":
		h.reply(ctx, chatID, welcomeText)
	case "help":
		h.reply(ctx, chatID, fmt.Sprintf(helpText, humanize.Bytes(uint64(h.maxUploadBytes))))
	case "status":
		h.status(ctx, chatID)
	case "cancel":
		h.sessions.Cancel(chatID)
		h.reply(ctx, chatID, msgCancelled)
	case "info":
		h.info(ctx, chatID)
	case "formats":
		h.formats(ctx, chatID)
	case "audioquality":
		if _, ok := h.requireURL(ctx, chatID); ok {
			h.reply(ctx, chatID, audioQualityText)
		}
	case "audio":
		h.awaitSelection(ctx, chatID, domain.KindAudio)
	case "video":
		h.awaitSelection(ctx, chatID, domain.KindVideo)
	default:
		h.logger.Debug("unknown command", "chat_id", chatID, "command", cmd)
	}
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) {
	if source, err := domain.ParseSource(text); err == nil {
		h.sessions.SetURL(chatID, source)
		h.logger.Info("url received", "chat_id", chatID, "url", source)
		h.reply(ctx, chatID, urlReceivedText(source))
		return
	}
	if domain.LooksLikeSource(text) {
		h.reply(ctx, chatID, msgInvalidURL)
		return
	}

	sess, ok := h.sessions.Get(chatID)
	if !ok || sess.State() != session.StateAwaitingSelection {
		return
	}

	label, ok := selectionLabel(sess.Pending, text)
	if !ok {
		h.reply(ctx, chatID, msgReprompt)
		return
	}
	h.download(ctx, chatID, sess, label)
}

// selectionLabel maps a numeric reply to a quality label.
func selectionLabel(kind domain.MediaKind, text string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return "", false
	}
	if kind == domain.KindAudio {
		if n < 1 || n > len(audioOptions) {
			return "", false
		}
		return audioOptions[n-1].Label, true
	}
	if n < 1 || n > len(videoOptions) {
		return "", false
	}
	return videoOptions[n-1].Label, true
}

func (h *Handler) requireURL(ctx context.Context, chatID int64) (session.Session, bool) {
	sess, ok := h.sessions.Get(chatID)
	if !ok || sess.URL == "" {
		h.reply(ctx, chatID, msgNeedURL)
		return session.Session{}, false
	}
	return sess, true
}

func (h *Handler) awaitSelection(ctx context.Context, chatID int64, kind domain.MediaKind) {
	if _, ok := h.requireURL(ctx, chatID); !ok {
		return
	}
	h.sessions.Await(chatID, kind)
	h.reply(ctx, chatID, selectionText(kind))
}

func (h *Handler) info(ctx context.Context, chatID int64) {
	sess, ok := h.requireURL(ctx, chatID)
	if !ok {
		return
	}
	h.reply(ctx, chatID, msgFetchingInfo)

	meta, err := h.fetchMetadata(ctx, chatID, sess)
	if err != nil {
		h.reply(ctx, chatID, msgInfoFailed)
		return
	}
	h.reply(ctx, chatID, infoText(meta))
}

func (h *Handler) formats(ctx context.Context, chatID int64) {
	sess, ok := h.requireURL(ctx, chatID)
	if !ok {
		return
	}

	meta := sess.Metadata
	if meta == nil {
		h.reply(ctx, chatID, msgFetchingInfo)
		var err error
		if meta, err = h.fetchMetadata(ctx, chatID, sess); err != nil {
			h.reply(ctx, chatID, msgInfoFailed)
			return
		}
	}
	h.reply(ctx, chatID, formatsText(meta))
}

// fetchMetadata queries the extractor and caches the result in the session
// unless the user sent another URL meanwhile. Failures are reported to the
// user rather than masked with placeholders.
func (h *Handler) fetchMetadata(ctx context.Context, chatID int64, sess session.Session) (*domain.MediaMetadata, error) {
	meta, err := h.metadata.Fetch(ctx, sess.URL)
	if err != nil {
		h.logger.Warn("metadata fetch failed", "chat_id", chatID, "url", sess.URL, "error", err)
		return nil, err
	}
	if _, ok := h.sessions.SetMetadata(chatID, sess.URL, meta); !ok {
		h.logger.Debug("discarding metadata for replaced url", "chat_id", chatID, "url", sess.URL)
	}
	return meta, nil
}

func formatsText(meta *domain.MediaMetadata) string {
	seen := make(map[int]bool)
	var video []domain.StreamDescriptor
	audio := 0
	for _, f := range meta.Formats {
		if f.IsAudioOnly() {
			audio++
			continue
		}
		if f.Container != "mp4" || f.Height <= 0 || seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		video = append(video, f)
	}
	sort.SliceStable(video, func(i, j int) bool { return video[i].Height > video[j].Height })

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Formats for: %s\n\n", displayTitle(meta))
	if len(video) == 0 {
		b.WriteString("No MP4 video formats listed. /video will pick the best available.\n")
	} else {
		b.WriteString("🎥 MP4 video:\n")
		for _, f := range video {
			fmt.Fprintf(&b, "• %dp (%s)\n", f.Height, formatSize(f.SizeBytes))
		}
	}
	fmt.Fprintf(&b, "\n🎵 Audio-only streams: %d\n", audio)
	b.WriteString("\nUse /video or /audio to download.")
	return b.String()
}

func (h *Handler) status(ctx context.Context, chatID int64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	ready := false
	if info, err := os.Stat(h.dir.Get()); err == nil && info.IsDir() {
		ready = true
	}
	h.reply(ctx, chatID, statusText(time.Since(h.started), h.sessions.Len(), ready, mem.HeapAlloc))
}

func (h *Handler) download(ctx context.Context, chatID int64, sess session.Session, label string) {
	h.sessions.Resolve(chatID)

	q, err := domain.ParseQuality(sess.Pending, label)
	if err != nil {
		h.reply(ctx, chatID, msgReprompt)
		return
	}

	req := service.DownloadRequest{Source: sess.URL, Quality: q, Metadata: sess.Metadata}
	fetch := h.downloads.Video
	if q.Kind == domain.KindAudio {
		fetch = h.downloads.Audio
	}

	h.reply(ctx, chatID, fmt.Sprintf("⏳ Downloading %s %s... this may take a while.", q.Label, q.Kind))
	h.logger.Info("bot download started", "chat_id", chatID, "url", sess.URL, "kind", q.Kind, "quality", q.Label)

	d, err := fetch(ctx, req)
	if err != nil {
		h.reply(ctx, chatID, downloadFailedText(err))
		return
	}
	defer d.Close()

	if h.maxUploadBytes > 0 && d.Size > h.maxUploadBytes {
		h.logger.Info("file above upload limit", "chat_id", chatID, "job_id", d.Job.ID, "size", d.Size)
		h.reply(ctx, chatID, tooLargeText(d.Size, h.maxUploadBytes))
		return
	}

	if err := h.messenger.SendFile(ctx, chatID, d.Path, d.Filename); err != nil {
		h.logger.Error("send file failed", "chat_id", chatID, "job_id", d.Job.ID, "error", err)
		h.reply(ctx, chatID, "❌ Failed to send the file. "+msgDownloadRetry)
		return
	}
	d.Delivered(ctx)
}

func downloadFailedText(err error) string {
	switch {
	case errors.Is(err, domain.ErrToolTimeout):
		return "❌ Download timed out. " + msgDownloadRetry
	case errors.Is(err, domain.ErrProcessingFailed):
		return "❌ Failed to process video. " + msgDownloadRetry
	default:
		return "❌ Download failed. " + msgDownloadRetry
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.messenger.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("send message failed", "chat_id", chatID, "error", err)
	}
}
