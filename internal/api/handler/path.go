package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// DirStore holds the active download directory.
type DirStore interface {
	Get() string
	Set(path string) (string, error)
}

// PathHandler exposes the download directory setting.
type PathHandler struct {
	dir    DirStore
	logger *slog.Logger
}

// NewPathHandler creates a new path handler.
func NewPathHandler(dir DirStore, logger *slog.Logger) *PathHandler {
	return &PathHandler{dir: dir, logger: logger}
}

// PathRequest is the JSON request body for updating the download directory.
type PathRequest struct {
	Path string `json:"path"`
}

// PathResponse is the JSON response for download directory calls.
type PathResponse struct {
	Success bool   `json:"success,omitempty"`
	Path    string `json:"path"`
}

// Get handles GET /api/download-path
func (h *PathHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PathResponse{Path: h.dir.Get()})
}

// Set handles POST /api/download-path
func (h *PathHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "Path is required")
		return
	}

	previous := h.dir.Get()
	path, err := h.dir.Set(req.Path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrPathInvalid) {
			status = http.StatusBadRequest
		}
		writeErrorDetails(w, status, "Invalid download path", err.Error())
		return
	}

	h.logger.Info("download path changed", "from", previous, "to", path)
	writeJSON(w, http.StatusOK, PathResponse{Success: true, Path: path})
}
