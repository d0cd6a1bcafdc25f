package radar

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/radar/pkg/middleware"
	"github.com/fkhayef/radar/pkg/request"
	"github.com/fkhayef/radar/pkg/response"
)

// Handler handles HTTP requests for radar operations
type Handler struct {
	service *Service
}

// NewHandler creates a new radar handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for radar endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/mine", h.Mine)
	r.Get("/{id}", h.GetByID)
	r.Get("/{id}/participants", h.ListParticipants)
	r.Get("/{id}/membership", h.Membership)
	r.Post("/{id}/join", h.Join)
	r.Post("/{id}/leave", h.Leave)

	// Host decisions
	r.Post("/{id}/participants/{userId}/approve", h.Approve)
	r.Post("/{id}/participants/{userId}/reject", h.Reject)

	return r
}

// writeError maps service errors to responses
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrHostCannotLeave):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrNotMember), errors.Is(err, ErrNoPendingJoin):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrJoinFailed), errors.Is(err, ErrLeaveFailed),
		errors.Is(err, ErrDecisionFailed), errors.Is(err, ErrCreateFailed):
		response.BadGateway(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

// Create handles POST /radars
// @Summary      Create a radar
// @Description  Create a radar and add the creator as host
// @Tags         radars
// @Accept       json
// @Produce      json
// @Param        request body CreateRadarRequest true "Radar creation request"
// @Success      201 {object} response.APIResponse{data=Event}
// @Failure      400 {object} response.APIResponse
// @Router       /radars [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	var req CreateRadarRequest
	if err := request.Decode(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	event, err := h.service.Create(r.Context(), creatorID, &req)
	if err != nil {
		writeError(w, err, "Failed to create radar")
		return
	}

	response.JSON(w, http.StatusCreated, event)
}

// Mine handles GET /radars/mine
// @Summary      My radar memberships
// @Description  Map of radar id to JOINED or PENDING for the caller
// @Tags         radars
// @Produce      json
// @Param        ids query string false "Comma separated radar ids"
// @Success      200 {object} response.APIResponse
// @Router       /radars/mine [get]
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	memberships, err := h.service.MembershipMap(r.Context(), userID, ids)
	if err != nil {
		writeError(w, err, "Failed to load memberships")
		return
	}

	response.JSON(w, http.StatusOK, memberships)
}

// GetByID handles GET /radars/{id}
// @Summary      Get radar by ID
// @Description  Get a radar with its participants
// @Tags         radars
// @Produce      json
// @Param        id path string true "Radar ID"
// @Success      200 {object} response.APIResponse{data=EventResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /radars/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	event, participants, err := h.service.GetEventWithParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to get radar")
		return
	}

	response.JSON(w, http.StatusOK, &EventResponse{Event: event, Participants: participants})
}

// ListParticipants handles GET /radars/{id}/participants
// @Summary      List participants
// @Tags         radars
// @Produce      json
// @Param        id path string true "Radar ID"
// @Success      200 {object} response.APIResponse{data=[]Participant}
// @Router       /radars/{id}/participants [get]
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.service.ListParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to list participants")
		return
	}

	response.JSON(w, http.StatusOK, participants)
}

// Membership handles GET /radars/{id}/membership
// @Summary      My membership in a radar
// @Tags         radars
// @Produce      json
// @Param        id path string true "Radar ID"
// @Success      200 {object} response.APIResponse{data=MembershipResponse}
// @Router       /radars/{id}/membership [get]
func (h *Handler) Membership(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}
	radarID := chi.URLParam(r, "id")

	m, err := h.service.ResolveMembership(r.Context(), userID, radarID)
	if err != nil {
		writeError(w, err, "Failed to resolve membership")
		return
	}

	response.JSON(w, http.StatusOK, &MembershipResponse{RadarID: radarID, Membership: m})
}

// Join handles POST /radars/{id}/join
// @Summary      Join a radar
// @Description  Join directly, or request to join when the host approves members
// @Tags         radars
// @Produce      json
// @Param        id path string true "Radar ID"
// @Success      200 {object} response.APIResponse{data=JoinResult}
// @Failure      404 {object} response.APIResponse
// @Failure      502 {object} response.APIResponse
// @Router       /radars/{id}/join [post]
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	result, err := h.service.Join(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to join radar")
		return
	}

	if result.AlreadyMember {
		response.JSONWithWarning(w, http.StatusOK, result, "already joined or requested")
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Leave handles POST /radars/{id}/leave
// @Summary      Leave a radar
// @Tags         radars
// @Param        id path string true "Radar ID"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /radars/{id}/leave [post]
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	if err := h.service.Leave(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "Failed to leave radar")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Left radar"})
}

// Approve handles POST /radars/{id}/participants/{userId}/approve
// @Summary      Approve a join request
// @Tags         radars
// @Param        id path string true "Radar ID"
// @Param        userId path string true "User ID"
// @Success      200 {object} response.APIResponse{data=Decision}
// @Failure      403 {object} response.APIResponse
// @Router       /radars/{id}/participants/{userId}/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// Reject handles POST /radars/{id}/participants/{userId}/reject
// @Summary      Reject a join request
// @Tags         radars
// @Param        id path string true "Radar ID"
// @Param        userId path string true "User ID"
// @Success      200 {object} response.APIResponse{data=Decision}
// @Failure      403 {object} response.APIResponse
// @Router       /radars/{id}/participants/{userId}/reject [post]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	hostID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}
	radarID, userID := chi.URLParam(r, "id"), chi.URLParam(r, "userId")

	var (
		d   *Decision
		err error
	)
	if approve {
		d, err = h.service.Approve(r.Context(), hostID, radarID, userID)
	} else {
		d, err = h.service.Reject(r.Context(), hostID, radarID, userID)
	}
	if err != nil {
		writeError(w, err, "Failed to update participant")
		return
	}

	response.JSON(w, http.StatusOK, d)
}
