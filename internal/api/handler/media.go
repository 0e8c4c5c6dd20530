package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/service"
)

// MetadataFetcher describes a source.
type MetadataFetcher interface {
	Fetch(ctx context.Context, source domain.SourceReference) (*domain.MediaMetadata, error)
}

// Downloader produces files for delivery.
type Downloader interface {
	Audio(ctx context.Context, req service.DownloadRequest) (*service.Delivery, error)
	Video(ctx context.Context, req service.DownloadRequest) (*service.Delivery, error)
}

// MediaHandler handles metadata and download requests.
type MediaHandler struct {
	metadata            MetadataFetcher
	downloads           Downloader
	placeholderFallback bool
	logger              *slog.Logger
}

// NewMediaHandler creates a new media handler. With placeholderFallback set,
// /api/info answers with placeholder metadata when the extractor fails.
func NewMediaHandler(metadata MetadataFetcher, downloads Downloader, placeholderFallback bool, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		metadata:            metadata,
		downloads:           downloads,
		placeholderFallback: placeholderFallback,
		logger:              logger,
	}
}

// MediaRequest is the JSON request body for info and download calls.
type MediaRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality,omitempty"`
	Format  string `json:"format,omitempty"`
}

// InfoResponse is the JSON response for /api/info.
type InfoResponse struct {
	Title       string           `json:"title"`
	Duration    float64          `json:"duration,omitempty"`
	Uploader    string           `json:"uploader,omitempty"`
	ViewCount   int64            `json:"view_count,omitempty"`
	UploadDate  string           `json:"upload_date,omitempty"`
	Thumbnail   string           `json:"thumbnail,omitempty"`
	Formats     []FormatResponse `json:"formats"`
	Placeholder bool             `json:"placeholder"`
}

// FormatResponse describes one available stream.
type FormatResponse struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	Height     int     `json:"height,omitempty"`
	Width      int     `json:"width,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	ABR        float64 `json:"abr,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
}

// Info handles POST /api/info
func (h *MediaHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req MediaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	source, ok := h.parseSource(w, req.URL)
	if !ok {
		return
	}

	meta, err := h.metadata.Fetch(r.Context(), source)
	if err != nil {
		if !h.placeholderFallback {
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to get video information", errorDetails(err))
			return
		}
		h.logger.Warn("serving placeholder metadata", "url", source, "error", err)
		meta = domain.PlaceholderMetadata()
	}

	writeJSON(w, http.StatusOK, newInfoResponse(meta))
}

// Audio handles POST /api/audio and POST /api/audio/{quality}
func (h *MediaHandler) Audio(w http.ResponseWriter, r *http.Request) {
	var req MediaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if q := chi.URLParam(r, "quality"); q != "" {
		req.Quality = q
	}

	source, ok := h.parseSource(w, req.URL)
	if !ok {
		return
	}
	quality, err := domain.ParseQuality(domain.KindAudio, req.Quality)
	if err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Unknown audio quality",
			"supported: "+strings.Join(domain.AudioQualities, ", "))
		return
	}

	d, err := h.downloads.Audio(r.Context(), service.DownloadRequest{Source: source, Quality: quality})
	if err != nil {
		h.writeDownloadError(w, err, "Failed to download audio. Video may be restricted or require authentication.")
		return
	}
	h.stream(w, r, d)
}

// Video handles POST /api/video and POST /api/video/{quality}
func (h *MediaHandler) Video(w http.ResponseWriter, r *http.Request) {
	var req MediaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if q := chi.URLParam(r, "quality"); q != "" {
		req.Format = q
	}
	if req.Format == "" {
		req.Format = req.Quality
	}

	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Format) == "" {
		writeError(w, http.StatusBadRequest, "URL and format are required")
		return
	}
	source, ok := h.parseSource(w, req.URL)
	if !ok {
		return
	}
	quality, err := domain.ParseQuality(domain.KindVideo, req.Format)
	if err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Unknown video format",
			"supported: "+strings.Join(domain.VideoQualities, ", "))
		return
	}

	d, err := h.downloads.Video(r.Context(), service.DownloadRequest{Source: source, Quality: quality})
	if err != nil {
		h.writeDownloadError(w, err, "Failed to download video. Video may be restricted or require authentication.")
		return
	}
	h.stream(w, r, d)
}

func (h *MediaHandler) parseSource(w http.ResponseWriter, raw string) (domain.SourceReference, bool) {
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return "", false
	}
	source, err := domain.ParseSource(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return "", false
	}
	return source, true
}

func (h *MediaHandler) writeDownloadError(w http.ResponseWriter, err error, fallback string) {
	msg := fallback
	switch {
	case errors.Is(err, domain.ErrProcessingFailed):
		msg = "Failed to process video"
	case errors.Is(err, domain.ErrToolTimeout):
		msg = "Download timed out"
	}
	status := statusFor(err)
	if status == http.StatusBadRequest {
		msg = err.Error()
	}
	writeErrorDetails(w, status, msg, errorDetails(err))
}

// stream sends the delivery as an attachment and purges it afterwards.
func (h *MediaHandler) stream(w http.ResponseWriter, r *http.Request, d *service.Delivery) {
	defer d.Close()

	f, err := d.Open()
	if err != nil {
		h.logger.Error("open output failed", "job_id", d.Job.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read downloaded file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		h.logger.Warn("stream interrupted", "job_id", d.Job.ID, "sent", n, "size", d.Size, "error", err)
		return
	}
	d.Delivered(r.Context())
	h.logger.Info("download delivered", "job_id", d.Job.ID, "filename", d.Filename, "size", n)
}

// errorDetails returns the tool message behind err, if any.
func errorDetails(err error) string {
	if d := domain.ToolDetails(err); d != "" {
		return d
	}
	if errors.Is(err, domain.ErrToolTimeout) || errors.Is(err, domain.ErrOutputMissing) {
		return err.Error()
	}
	return ""
}

func newInfoResponse(meta *domain.MediaMetadata) InfoResponse {
	resp := InfoResponse{
		Title:       meta.Title,
		Duration:    meta.DurationSeconds,
		Uploader:    meta.Uploader,
		ViewCount:   meta.ViewCount,
		UploadDate:  meta.UploadDate,
		Thumbnail:   meta.ThumbnailURL,
		Formats:     make([]FormatResponse, 0, len(meta.Formats)),
		Placeholder: meta.Placeholder,
	}
	for _, f := range meta.Formats {
		resp.Formats = append(resp.Formats, FormatResponse{
			FormatID:   f.FormatID,
			Ext:        f.Container,
			Resolution: resolution(f),
			Height:     f.Height,
			Width:      f.Width,
			Filesize:   f.SizeBytes,
			ABR:        f.BitrateKbps,
			VCodec:     f.VideoCodec,
			ACodec:     f.AudioCodec,
		})
	}
	return resp
}

func resolution(f domain.StreamDescriptor) string {
	switch {
	case f.Height > 0:
		return fmt.Sprintf("%dp", f.Height)
	case f.IsAudioOnly():
		return "audio only"
	default:
		return "unknown"
	}
}
