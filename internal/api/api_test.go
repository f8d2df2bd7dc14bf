package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/attendance"
	"comlab-status-backend/internal/auth"
	"comlab-status-backend/internal/db"
	"comlab-status-backend/internal/history"
	"comlab-status-backend/internal/lock"
	"comlab-status-backend/internal/model"
	"comlab-status-backend/internal/occupancy"
	"comlab-status-backend/internal/reconcile"
	"comlab-status-backend/internal/store"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "comlab-test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	store    store.Store
	registry *occupancy.Registry
	admin    string
}

type failingSource struct{}

func (failingSource) Records(context.Context) ([]reconcile.RawRecord, error) {
	return nil, errors.New("connection refused")
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateBurst:       1000,
			CacheTTLSeconds: 30,
			PublicBaseURL:   "https://comlab.example.edu",
		},
		Labs: config.LabsConfig{Count: 4, Timezone: "UTC"},
		Auth: config.AuthConfig{SigningKey: testSigningKey, Issuer: testIssuer, TTLMinutes: 60},
	}
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()

	gdb, err := db.Init(&config.DatabaseConfig{
		Driver:   config.DriverSQLite,
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, zerolog.Nop())
	require.NoError(t, err)

	s := store.NewGormStore(gdb)
	journal := attendance.NewDBJournal(s)
	reg := occupancy.New(s, lock.NewMemoryLocker(), occupancy.Options{Journal: journal, Logger: zerolog.Nop()})
	_, err = reg.Initialize(context.Background(), 4)
	require.NoError(t, err)

	deps := Deps{
		Store:    s,
		Registry: reg,
		History:  history.NewService(journal, reconcile.New(time.UTC), zerolog.Nop()),
		Config:   testConfig(),
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	token, _, err := auth.Issue("admin@example.edu", auth.RoleAdmin, testIssuer, testSigningKey, time.Hour)
	require.NoError(t, err)

	return &testEnv{
		router:   NewRouter(NewHandler(deps)),
		store:    s,
		registry: reg,
		admin:    token,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type scanResponse struct {
	Action  string    `json:"action"`
	Lab     model.Lab `json:"lab"`
	Message string    `json:"message"`
	Error   string    `json:"error"`
	Kind    string    `json:"kind"`
}

func TestLabs_ListAndGet(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/labs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	labs := decode[[]model.Lab](t, w)
	require.Len(t, labs, 4)
	for i, lab := range labs {
		assert.Equal(t, []string{"1", "2", "3", "4"}[i], lab.LabNumber)
		assert.Equal(t, model.LabAvailable, lab.Status)
	}

	w = env.do(t, http.MethodGet, "/api/labs/comlab2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Computer Laboratory 2", decode[model.Lab](t, w).LabName)

	w = env.do(t, http.MethodGet, "/api/labs/9", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[map[string]any](t, w)["kind"])
}

func TestValidateLab(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/labs/validate/3", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "3", body["labNumber"])

	w = env.do(t, http.MethodGet, "/api/labs/validate/99", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["valid"])
}

func TestScanInstructor_TogglesLab(t *testing.T) {
	env := newTestEnv(t)
	scan := map[string]any{"instructorId": "i-1", "instructor": "Dr. Cruz", "labNumber": "Lab 3"}

	w := env.do(t, http.MethodPost, "/api/labs/scan-instructor", scan, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[scanResponse](t, w)
	assert.Equal(t, "login", res.Action)
	assert.Equal(t, model.LabOccupied, res.Lab.Status)
	assert.Equal(t, "Dr. Cruz", res.Lab.InstructorName())
	assert.Contains(t, res.Message, "checked in to Lab 3")

	w = env.do(t, http.MethodPost, "/api/labs/scan-instructor", scan, "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[scanResponse](t, w)
	assert.Equal(t, "logout", res.Action)
	assert.Equal(t, model.LabAvailable, res.Lab.Status)
	assert.Nil(t, res.Lab.Instructor)
}

func TestScanInstructor_QRData(t *testing.T) {
	env := newTestEnv(t)
	in := model.Instructor{ID: "i-7", Name: "Maria", Lastname: "Santos", Email: "maria@example.edu"}
	require.NoError(t, env.store.CreateInstructor(context.Background(), &in))

	w := env.do(t, http.MethodPost, "/api/qr-code/instructor", map[string]any{"instructorId": "i-7"}, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	link := decode[map[string]any](t, w)["qrData"].(string)
	assert.Contains(t, link, "https://comlab.example.edu/lab-selection.html?data=")

	w = env.do(t, http.MethodPost, "/api/labs/scan-instructor", map[string]any{"qrData": link, "labNumber": "2"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[scanResponse](t, w)
	assert.Equal(t, "login", res.Action)
	assert.Equal(t, "Maria Santos", res.Lab.InstructorName())
	assert.Equal(t, "i-7", res.Lab.OccupantID())
}

func TestScanInstructor_Rejections(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/labs/scan-instructor",
		map[string]any{"instructorId": "i-1", "instructor": "Dr. Cruz", "labNumber": "1"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		kind   string
	}{
		{"occupied by another", map[string]any{"instructorId": "i-2", "instructor": "Dr. Reyes", "labNumber": "1"}, http.StatusConflict, "conflict"},
		{"unknown lab", map[string]any{"instructorId": "i-2", "instructor": "Dr. Reyes", "labNumber": "42"}, http.StatusNotFound, "not_found"},
		{"missing lab", map[string]any{"instructorId": "i-2", "instructor": "Dr. Reyes"}, http.StatusBadRequest, "validation"},
		{"missing instructor", map[string]any{"labNumber": "2"}, http.StatusBadRequest, "validation"},
		{"bad qr", map[string]any{"qrData": "not a badge", "labNumber": "2"}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/labs/scan-instructor", tt.body, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, decode[scanResponse](t, w).Kind)
		})
	}
}

func TestScanInstructor_TimeIn(t *testing.T) {
	env := newTestEnv(t)
	in := model.Instructor{ID: "i-9", Name: "Liza", Lastname: "Gomez", Email: "liza@example.edu"}
	require.NoError(t, env.store.CreateInstructor(context.Background(), &in))

	w := env.do(t, http.MethodPost, "/api/qr-code/instructor", map[string]any{"instructorId": "i-9"}, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	badge := decode[map[string]any](t, w)["qrData"].(string)

	explicit := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		body   map[string]any
		wantAt *time.Time
	}{
		{
			name:   "readable time is kept",
			body:   map[string]any{"instructorId": "i-1", "instructor": "Dr. Cruz", "labNumber": "1", "timeIn": "2025-03-14 09:00:00"},
			wantAt: &explicit,
		},
		{
			name: "unreadable time falls back to now",
			body: map[string]any{"instructorId": "i-2", "instructor": "Dr. Reyes", "labNumber": "2",
				"timeIn": "Fri Mar 14 2025 09:00:00 GMT+0800 (Philippine Standard Time)"},
		},
		{
			name: "badge scans use server time",
			body: map[string]any{"qrData": badge, "labNumber": "3", "timeIn": "2025-03-14 09:00:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now().Add(-time.Second)
			w := env.do(t, http.MethodPost, "/api/labs/scan-instructor", tt.body, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			res := decode[scanResponse](t, w)
			assert.Equal(t, "login", res.Action)
			require.NotNil(t, res.Lab.TimeIn)
			if tt.wantAt != nil {
				assert.True(t, tt.wantAt.Equal(*res.Lab.TimeIn), res.Lab.TimeIn)
				return
			}
			assert.WithinRange(t, *res.Lab.TimeIn, before, time.Now().Add(time.Second))
		})
	}
}

func TestReleaseLab(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/labs/scan-instructor",
		map[string]any{"instructorId": "i-1", "instructor": "Dr. Cruz", "labNumber": "4"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/labs/4/release", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	lab := decode[struct {
		Lab model.Lab `json:"lab"`
	}](t, w).Lab
	assert.Equal(t, model.LabAvailable, lab.Status)
	assert.Nil(t, lab.InstructorID)
	assert.Nil(t, lab.TimeIn)

	// Releasing again is a no-op.
	w = env.do(t, http.MethodPost, "/api/labs/4/release", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/instructors", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := auth.Issue("i-1", auth.RoleInstructor, testIssuer, testSigningKey, time.Hour)
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/api/instructors", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/instructors", nil, env.admin)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitializeLabs_Idempotent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/labs/initialize", map[string]any{"count": 8}, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Lab](t, w), 4)
}

func TestInstructors_CRUD(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"name": "Jose", "lastname": "Rizal", "email": "Jose@Example.edu"}

	w := env.do(t, http.MethodPost, "/api/instructors", body, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.Instructor](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "jose@example.edu", created.Email)

	w = env.do(t, http.MethodPost, "/api/instructors", body, env.admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/instructors", map[string]any{"name": "No", "lastname": "Mail", "email": "nope"}, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/instructors/"+created.ID,
		map[string]any{"name": "José", "lastname": "Rizal", "email": "jose@example.edu"}, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "José", decode[model.Instructor](t, w).Name)

	w = env.do(t, http.MethodGet, "/api/instructors/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/instructors/"+created.ID, nil, env.admin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/instructors/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPut, "/api/instructors/missing", body, env.admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistory_ReconcilesAndCaches(t *testing.T) {
	env := newTestEnv(t)
	scan := map[string]any{"instructorId": "i-1", "instructor": "Dr. Cruz", "labNumber": "2"}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/labs/scan-instructor", scan, "").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/labs/scan-instructor", scan, "").Code)

	w := env.do(t, http.MethodGet, "/api/history?q=cruz", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	sessions := decode[[]reconcile.Session](t, w)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Dr. Cruz", sessions[0].Instructor)
	assert.Equal(t, "2", sessions[0].LabNumber)
	assert.True(t, sessions[0].Completed)

	w = env.do(t, http.MethodGet, "/api/history?q=cruz", nil, env.admin)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = env.do(t, http.MethodGet, "/api/history?q=reyes", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]reconcile.Session](t, w))
}

func TestHistory_UpstreamUnavailable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.History = history.NewService(failingSource{}, reconcile.New(time.UTC), zerolog.Nop())
	})

	w := env.do(t, http.MethodGet, "/api/history", nil, env.admin)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "upstream_unavailable", body["kind"])
	assert.Equal(t, true, body["retryable"])

	// The registry is a separate store and keeps working.
	w = env.do(t, http.MethodGet, "/api/labs", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportHistory(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/history/export", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "comlab-history-")
	assert.NotZero(t, w.Body.Len())
}

func TestLabKeyQR(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/qr-code/lab-key", map[string]any{"labNumber": "Lab 2"}, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "2", body["labNumber"])
	assert.Contains(t, body["qrData"], `"type":"labKey"`)

	w = env.do(t, http.MethodPost, "/api/qr-code/lab-key", map[string]any{"labNumber": "77"}, env.admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	endpoint := "https://push.example.com/abc?x=1"

	w := env.do(t, http.MethodPut, "/api/subscriptions", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":        endpoint,
		"p256dh":          "key",
		"auth":            "secret",
		"subscribed_labs": []string{"1", "Lab 3"},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.ElementsMatch(t, []string{"1", "3"}, decode[map[string][]string](t, w)["subscribed_labs"])

	w = env.do(t, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":        endpoint,
		"p256dh":          "key2",
		"auth":            "secret2",
		"subscribed_labs": []string{"2"},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), nil, "")
	assert.Equal(t, []string{"2"}, decode[map[string][]string](t, w)["subscribed_labs"])

	w = env.do(t, http.MethodDelete, "/api/subscriptions", map[string]any{"endpoint": endpoint}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/vapid_public_key", nil, "").Code)

	env = newTestEnv(t, func(d *Deps) {
		d.WebPush = &webpush.Options{VAPIDPublicKey: "BPublic"}
	})
	w := env.do(t, http.MethodGet, "/api/vapid_public_key", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BPublic", decode[map[string]any](t, w)["public_key"])
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil, "").Code)
}
