package media

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/radar/internal/radar"
	"github.com/fkhayef/radar/pkg/middleware"
	"github.com/fkhayef/radar/pkg/response"
)

const maxCoverSize = 5 << 20

// Covers is the part of the radar service cover uploads depend on.
type Covers interface {
	GetEvent(ctx context.Context, radarID string) (*radar.Event, error)
	SetCoverURL(ctx context.Context, userID, radarID, url string) (*radar.Event, error)
}

// Handler handles media uploads
type Handler struct {
	uploader *Uploader
	radars   Covers
}

// NewHandler creates a new media handler
func NewHandler(uploader *Uploader, radars Covers) *Handler {
	return &Handler{uploader: uploader, radars: radars}
}

// Routes returns the router for media endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/radars/{id}/cover", h.UploadCover)
	return r
}

// UploadCover handles POST /media/radars/{id}/cover
// @Summary      Upload a radar cover image
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        id path string true "Radar ID"
// @Param        file formData file true "Image"
// @Success      201 {object} response.APIResponse{data=radar.Event}
// @Failure      403 {object} response.APIResponse
// @Failure      503 {object} response.APIResponse
// @Router       /media/radars/{id}/cover [post]
func (h *Handler) UploadCover(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}
	radarID := chi.URLParam(r, "id")

	event, err := h.radars.GetEvent(r.Context(), radarID)
	if err != nil {
		if errors.Is(err, radar.ErrEventNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to load radar")
		return
	}
	if !event.IsHost(userID) {
		response.Forbidden(w, radar.ErrNotHost.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCoverSize+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		response.BadRequest(w, "file must be an image")
		return
	}
	if header.Size > maxCoverSize {
		response.BadRequest(w, "file is too large")
		return
	}

	key := "radars/" + radarID + "/cover-" + uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	obj, err := h.uploader.Upload(r.Context(), key, file, header.Size, contentType)
	if err != nil {
		if errors.Is(err, ErrNoBucket) {
			response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error())
			return
		}
		response.BadGateway(w, "Failed to store image")
		return
	}

	updated, err := h.radars.SetCoverURL(r.Context(), userID, radarID, obj.URL)
	if err != nil {
		response.InternalError(w, "Failed to save cover")
		return
	}

	response.JSON(w, http.StatusCreated, updated)
}
