package invite

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/radar/internal/radar"
	"github.com/fkhayef/radar/pkg/middleware"
	"github.com/fkhayef/radar/pkg/request"
	"github.com/fkhayef/radar/pkg/response"
)

// Handler handles HTTP requests for invite operations
type Handler struct {
	service *Service
}

// NewHandler creates a new invite handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for invite endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Inbox)
	r.Get("/sent", h.ListSent)
	r.Post("/personal", h.CreatePersonal)
	r.Post("/group", h.CreateGroup)
	r.Post("/{id}/accept", h.Accept)
	r.Post("/{id}/decline", h.Decline)
	r.Post("/{id}/cancel", h.Cancel)

	return r
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrSelfInvite):
		response.Unprocessable(w, err.Error())
	case errors.Is(err, ErrInviteNotFound), errors.Is(err, radar.ErrEventNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrInviteNotAllowed), errors.Is(err, ErrNotInvitee), errors.Is(err, ErrNotInviter):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrActiveInvite), errors.Is(err, ErrAlreadyParticipant), errors.Is(err, ErrInviteNotPending):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrInviteFailed), errors.Is(err, ErrRespondFailed):
		response.BadGateway(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

// Inbox handles GET /invites
// @Summary      Invite inbox
// @Description  Invites and invite notifications addressed to the caller, newest first
// @Tags         invites
// @Produce      json
// @Success      200 {object} response.APIResponse{data=[]InboxItem}
// @Router       /invites [get]
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	items, err := h.service.Inbox(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to load invites")
		return
	}

	response.JSON(w, http.StatusOK, items)
}

// ListSent handles GET /invites/sent
// @Summary      Sent invites
// @Tags         invites
// @Produce      json
// @Success      200 {object} response.APIResponse{data=[]Invite}
// @Router       /invites/sent [get]
func (h *Handler) ListSent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	invites, err := h.service.ListSent(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to load invites")
		return
	}

	response.JSON(w, http.StatusOK, invites)
}

// CreatePersonal handles POST /invites/personal
// @Summary      Send a personal invite
// @Description  Creates a private two-person radar and invites the user to it
// @Tags         invites
// @Accept       json
// @Produce      json
// @Param        request body CreatePersonalInviteRequest true "Personal invite request"
// @Success      201 {object} response.APIResponse{data=Invite}
// @Failure      409 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /invites/personal [post]
func (h *Handler) CreatePersonal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	var req CreatePersonalInviteRequest
	if err := request.Decode(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	inv, err := h.service.CreatePersonal(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err, "Failed to send invite")
		return
	}

	response.JSON(w, http.StatusCreated, inv)
}

// CreateGroup handles POST /invites/group
// @Summary      Invite to a radar
// @Tags         invites
// @Accept       json
// @Produce      json
// @Param        request body CreateGroupInviteRequest true "Group invite request"
// @Success      201 {object} response.APIResponse{data=Invite}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /invites/group [post]
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	var req CreateGroupInviteRequest
	if err := request.Decode(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	inv, err := h.service.CreateGroup(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err, "Failed to send invite")
		return
	}

	response.JSON(w, http.StatusCreated, inv)
}

// Accept handles POST /invites/{id}/accept
// @Summary      Accept an invite
// @Description  Accepts and joins the radar. id may be an invite or an invite notification.
// @Tags         invites
// @Produce      json
// @Param        id path string true "Invite or notification ID"
// @Success      200 {object} response.APIResponse{data=RespondResult}
// @Failure      404 {object} response.APIResponse
// @Router       /invites/{id}/accept [post]
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, true)
}

// Decline handles POST /invites/{id}/decline
// @Summary      Decline an invite
// @Tags         invites
// @Produce      json
// @Param        id path string true "Invite or notification ID"
// @Success      200 {object} response.APIResponse{data=RespondResult}
// @Failure      404 {object} response.APIResponse
// @Router       /invites/{id}/decline [post]
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, false)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, accept bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	result, err := h.service.Respond(r.Context(), userID, chi.URLParam(r, "id"), accept)
	if err != nil {
		writeError(w, err, "Failed to answer invite")
		return
	}

	if result.Warning != "" {
		response.JSONWithWarning(w, http.StatusOK, result, result.Warning)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Cancel handles POST /invites/{id}/cancel
// @Summary      Cancel a sent invite
// @Tags         invites
// @Produce      json
// @Param        id path string true "Invite ID"
// @Success      200 {object} response.APIResponse{data=Invite}
// @Failure      403 {object} response.APIResponse
// @Router       /invites/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	inv, err := h.service.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "Failed to cancel invite")
		return
	}

	response.JSON(w, http.StatusOK, inv)
}
