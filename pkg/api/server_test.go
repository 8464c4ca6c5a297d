package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storiats/memoryvista/pkg/access"
	"github.com/storiats/memoryvista/pkg/auth"
	"github.com/storiats/memoryvista/pkg/middleware"
	"github.com/storiats/memoryvista/pkg/profiles"
	"github.com/storiats/memoryvista/pkg/requests"
	"github.com/storiats/memoryvista/pkg/store"
	"github.com/storiats/memoryvista/pkg/store/memstore"
	"github.com/storiats/memoryvista/pkg/universities"
)

type apiFixture struct {
	t       *testing.T
	st      *memstore.Store
	codec   *auth.TokenCodec
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	st := memstore.New()
	resolver := access.NewResolver(st, 0, log)
	uniSvc := universities.NewService(st, resolver, nil, log)
	profSvc := profiles.NewService(st, resolver, nil, log)
	reqSvc := requests.NewService(st, resolver, nil, requests.Config{
		MaxPendingRequests: 2,
		CooldownPeriod:     time.Hour,
	}, log)

	codec, err := auth.NewTokenCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	server := NewServer(uniSvc, profSvc, reqSvc, log)
	authn := middleware.NewAuthMiddleware(codec, true)
	return &apiFixture{
		t:       t,
		st:      st,
		codec:   codec,
		handler: authn.Handler(server.Router()),
	}
}

func (f *apiFixture) token(userID string) string {
	f.t.Helper()
	token, err := f.codec.Sign(auth.Identity{UserID: userID}, time.Hour)
	require.NoError(f.t, err)
	return token
}

func (f *apiFixture) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(userID))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

func (f *apiFixture) createProfile(creatorID string, publish bool) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/profiles", creatorID, map[string]string{
		"kind":      "memorial",
		"full_name": "Ada Lovelace",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code)
	var p store.Profile
	decode(f.t, rec, &p)
	if publish {
		rec = f.do(http.MethodPost, "/api/v1/profiles/"+p.ID+"/publish", creatorID, nil)
		require.Equal(f.t, http.StatusNoContent, rec.Code)
	}
	return p.ID
}

func TestMutationsRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/universities"},
		{http.MethodPost, "/api/v1/profiles"},
		{http.MethodPost, "/api/v1/profiles/p1/publish"},
		{http.MethodPost, "/api/v1/profiles/p1/editor-requests"},
		{http.MethodGet, "/api/v1/me/editor-requests"},
	} {
		rec := f.do(tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestInvalidToken(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/editor-requests", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUniversityLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/universities", "founder-1", map[string]string{
		"name": "Miskatonic University",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var u store.University
	decode(t, rec, &u)
	assert.Equal(t, []string{"founder-1"}, u.AdminIDs)

	// Public read, no token.
	rec = f.do(http.MethodGet, "/api/v1/universities/"+u.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/universities/"+u.ID+"/admins", "founder-1", map[string]string{
		"user_id": "admin-2",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Revoking the last remaining admin conflicts.
	rec = f.do(http.MethodDelete, "/api/v1/universities/"+u.ID+"/admins/founder-1", "admin-2", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodDelete, "/api/v1/universities/"+u.ID+"/admins/admin-2", "admin-2", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Strangers cannot grant; answer matches a missing university.
	rec = f.do(http.MethodPost, "/api/v1/universities/"+u.ID+"/admins", "stranger", map[string]string{
		"user_id": "x",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUniversity_Validation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/universities", "founder-1", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/universities", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+f.token("founder-1"))
	rec2 := httptest.NewRecorder()
	f.handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestProfileVisibility(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", false)

	// Draft: creator sees it, strangers and anonymous callers get 404.
	rec := f.do(http.MethodGet, "/api/v1/profiles/"+id, "creator-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id, "stranger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/profiles/"+id+"/publish", "creator-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProfile_InvalidKind(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/profiles", "creator-1", map[string]string{
		"kind":      "corporate",
		"full_name": "Ada Lovelace",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProfile_UnknownUniversity(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/profiles", "creator-1", map[string]string{
		"kind":          "memorial",
		"full_name":     "Ada Lovelace",
		"university_id": "no-such-uni",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", false)

	rec := f.do(http.MethodPatch, "/api/v1/profiles/"+id, "creator-1", map[string]string{
		"headline": "Mathematician",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var p store.Profile
	decode(t, rec, &p)
	assert.Equal(t, "Mathematician", p.Headline)

	rec = f.do(http.MethodPatch, "/api/v1/profiles/"+id, "stranger", map[string]string{
		"headline": "Vandalism",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileRole(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	rec := f.do(http.MethodGet, "/api/v1/profiles/"+id+"/role", "creator-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var role roleResponse
	decode(t, rec, &role)
	assert.Equal(t, access.RoleEditor, role.Role)
	assert.True(t, role.CanEdit)

	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id+"/role", "stranger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &role)
	assert.Equal(t, access.RoleViewer, role.Role)
	assert.False(t, role.CanEdit)
}

func TestEditorRequestWorkflow(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	rec := f.do(http.MethodPost, "/api/v1/profiles/"+id+"/editor-requests", "user-1", map[string]string{
		"reason": "family member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var req store.EditorRequest
	decode(t, rec, &req)
	assert.Equal(t, store.RequestPending, req.Status)

	// Only a university admin or the profile creator may list or decide.
	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id+"/editor-requests", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id+"/editor-requests", "creator-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/profiles/"+id+"/editor-requests/"+req.ID+"/approve", "creator-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decided store.EditorRequest
	decode(t, rec, &decided)
	assert.Equal(t, store.RequestApproved, decided.Status)
	assert.Equal(t, "creator-1", decided.DecidedBy)

	// The approved user now passes the edit gate.
	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id+"/role", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var role roleResponse
	decode(t, rec, &role)
	assert.True(t, role.CanEdit)

	// A decided request cannot be decided again.
	rec = f.do(http.MethodPost, "/api/v1/profiles/"+id+"/editor-requests/"+req.ID+"/reject", "creator-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitEditorRequest_NoBody(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	rec := f.do(http.MethodPost, "/api/v1/profiles/"+id+"/editor-requests", "user-1", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSubmitEditorRequest_AlreadyEditor(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	rec := f.do(http.MethodPost, "/api/v1/profiles/"+id+"/editor-requests", "creator-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitEditorRequest_CooldownSetsRetryAfter(t *testing.T) {
	f := newAPIFixture(t)
	first := f.createProfile("creator-1", true)
	second := f.createProfile("creator-1", true)

	rec := f.do(http.MethodPost, "/api/v1/profiles/"+first+"/editor-requests", "user-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/profiles/"+second+"/editor-requests", "user-1", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMyRequestsAndStats(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	rec := f.do(http.MethodPost, "/api/v1/profiles/"+id+"/editor-requests", "user-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/me/editor-requests", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Requests []store.EditorRequest `json:"requests"`
	}
	decode(t, rec, &listBody)
	assert.Len(t, listBody.Requests, 1)

	rec = f.do(http.MethodGet, "/api/v1/me/editor-requests/stats", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.RequestStats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.PendingRequests)
	assert.Equal(t, 1, stats.TotalRequests)
	assert.NotNil(t, stats.CooldownUntil)
}

func TestCollaboratorEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	rec := f.do(http.MethodPost, "/api/v1/profiles/"+id+"/collaborators", "creator-1", map[string]string{
		"user_id": "collab-1",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id+"/role", "collab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var role roleResponse
	decode(t, rec, &role)
	assert.True(t, role.CanEdit)

	// A collaborator cannot manage grants on someone else's profile.
	rec = f.do(http.MethodPost, "/api/v1/profiles/"+id+"/collaborators", "collab-1", map[string]string{
		"user_id": "collab-2",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/profiles/"+id+"/collaborators/collab-1", "creator-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/profiles/"+id+"/role", "collab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &role)
	assert.False(t, role.CanEdit)
}

func TestStoreOutageMapsTo503(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createProfile("creator-1", true)

	f.st.FailNext = assert.AnError
	rec := f.do(http.MethodGet, "/api/v1/profiles/"+id, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListUniversityProfiles(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/universities", "admin-1", map[string]string{
		"name": "Miskatonic University",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var u store.University
	decode(t, rec, &u)

	rec = f.do(http.MethodPost, "/api/v1/profiles", "creator-1", map[string]string{
		"kind":          "memorial",
		"full_name":     "Draft Person",
		"university_id": u.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var listBody struct {
		Profiles []store.Profile `json:"profiles"`
	}
	rec = f.do(http.MethodGet, "/api/v1/universities/"+u.ID+"/profiles", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &listBody)
	assert.Len(t, listBody.Profiles, 1)

	rec = f.do(http.MethodGet, "/api/v1/universities/"+u.ID+"/profiles", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listBody.Profiles = nil
	decode(t, rec, &listBody)
	assert.Empty(t, listBody.Profiles)
}
