package checkin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/radar/pkg/middleware"
	"github.com/fkhayef/radar/pkg/request"
	"github.com/fkhayef/radar/pkg/response"
)

// Handler handles HTTP requests for check-ins
type Handler struct {
	service *Service
}

// NewHandler creates a new check-in handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for check-in endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/active", h.Active)
	r.Post("/", h.CheckIn)

	return r
}

// Active handles GET /checkins/active
// @Summary      Current check-in
// @Tags         checkins
// @Produce      json
// @Success      200 {object} response.APIResponse{data=CheckIn}
// @Failure      404 {object} response.APIResponse
// @Router       /checkins/active [get]
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	c, err := h.service.Active(r.Context(), userID)
	if err != nil {
		response.InternalError(w, "Failed to load check-in")
		return
	}
	if c == nil {
		response.NotFound(w, "Not checked in")
		return
	}

	response.JSON(w, http.StatusOK, c)
}

// CheckIn handles POST /checkins
// @Summary      Check in at a church
// @Tags         checkins
// @Accept       json
// @Produce      json
// @Param        request body CheckInRequest true "Check-in request"
// @Success      201 {object} response.APIResponse{data=CheckIn}
// @Failure      400 {object} response.APIResponse
// @Router       /checkins [post]
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	var req CheckInRequest
	if err := request.Decode(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	c, err := h.service.CheckIn(r.Context(), userID, req.ChurchID)
	if err != nil {
		response.InternalError(w, "Failed to check in")
		return
	}

	response.JSON(w, http.StatusCreated, c)
}
