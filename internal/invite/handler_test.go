package invite

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/radar/pkg/middleware"
	"github.com/fkhayef/radar/pkg/response"
)

func serve(t *testing.T, f *fixture, method, path, userID, body string) (*httptest.ResponseRecorder, response.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	middleware.TestUserMiddleware(NewHandler(f.svc).Routes()).ServeHTTP(rr, req)

	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestHandlerStatusCodes(t *testing.T) {
	f := newFixture(t)
	seedInvite(f)

	rr, resp := serve(t, f, http.MethodPost, "/personal", "u1", `{"invitee_id":"u1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "UNPROCESSABLE", resp.Error.Code)

	rr, _ = serve(t, f, http.MethodPost, "/personal", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = serve(t, f, http.MethodPost, "/i1/accept", "intruder", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = serve(t, f, http.MethodPost, "/missing/accept", "u2", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = serve(t, f, http.MethodPost, "/group", "host", `{"radar_id":"r1","invitee_id":"u2"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = serve(t, f, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerAcceptWarning(t *testing.T) {
	f := newFixture(t)
	seedInvite(f)
	denied := errors.New("new row violates row-level security policy")
	f.mem.Fail("insert", "radar_v2_participants", denied).Fail("insert", "radar_participants", denied)

	rr, resp := serve(t, f, http.MethodPost, "/i1/accept", "u2", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Warning, "joining the radar failed")
}

func TestHandlerInbox(t *testing.T) {
	f := newFixture(t)
	seedInvite(f)

	rr, resp := serve(t, f, http.MethodGet, "/", "u2", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	items, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}
