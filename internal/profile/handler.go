package profile

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/radar/pkg/middleware"
	"github.com/fkhayef/radar/pkg/response"
)

// Handler handles HTTP requests for profiles
type Handler struct {
	service *Service
}

// NewHandler creates a new profile handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for profile endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/me", h.Me)
	r.Get("/{id}", h.GetByID)

	return r
}

// Me handles GET /profiles/me
// @Summary      Get my profile
// @Tags         profiles
// @Produce      json
// @Success      200 {object} response.APIResponse{data=Profile}
// @Failure      404 {object} response.APIResponse
// @Router       /profiles/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}
	h.write(w, r, userID)
}

// GetByID handles GET /profiles/{id}
// @Summary      Get profile by ID
// @Tags         profiles
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} response.APIResponse{data=Profile}
// @Failure      404 {object} response.APIResponse
// @Router       /profiles/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get profile")
		return
	}

	response.JSON(w, http.StatusOK, p)
}
