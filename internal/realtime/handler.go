package realtime

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/radar/pkg/response"
)

// History reads recent events of a radar.
type History interface {
	Recent(ctx context.Context, radarID string, n int) ([]Event, error)
}

// Handler serves recent radar events to clients catching up after a
// reconnect.
type Handler struct {
	history History
}

// NewHandler creates a new realtime handler
func NewHandler(history History) *Handler {
	return &Handler{history: history}
}

// Routes returns the router for activity endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.Recent)
	return r
}

// Recent handles GET /activity/{id}
// @Summary      Recent radar events
// @Tags         activity
// @Produce      json
// @Param        id path string true "Radar ID"
// @Param        limit query int false "Max events (default 20)"
// @Success      200 {object} response.APIResponse{data=[]Event}
// @Router       /activity/{id} [get]
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > historySize {
		limit = 20
	}

	events, err := h.history.Recent(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		response.InternalError(w, "Failed to load activity")
		return
	}

	response.JSON(w, http.StatusOK, events)
}
