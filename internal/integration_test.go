package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
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
	"comlab-status-backend/internal/api"
	"comlab-status-backend/internal/app"
	"comlab-status-backend/internal/auth"
	"comlab-status-backend/internal/model"
	"comlab-status-backend/internal/reconcile"
)

// TestLabLifecycle drives a lab from available to occupied and back through
// the HTTP surface, then checks the push delivery and the reconciled history.
func TestLabLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---

	// 1. A push service that accepts one delivery and then reports the
	// subscription as gone.
	deliveries := make(chan *http.Request, 4)
	pushServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries <- r
		w.WriteHeader(http.StatusGone)
	}))
	defer pushServer.Close()

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	// 2. Configuration on an in-memory database.
	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 1000, RateBurst: 1000, CacheTTLSeconds: 1},
		Database: config.DatabaseConfig{
			Driver:   config.DriverSQLite,
			DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
			LogLevel: "silent",
		},
		Labs:       config.LabsConfig{Count: 3, Timezone: "UTC"},
		Attendance: config.AttendanceConfig{Backend: config.AttendanceDatabase},
		Lock:       config.LockConfig{Backend: config.LockMemory, TTLSeconds: 5},
		Auth:       config.AuthConfig{SigningKey: "integration-key", Issuer: "comlab-it", TTLMinutes: 5},
		Push: config.PushConfig{
			PublicKey:  vapidPublic,
			PrivateKey: vapidPrivate,
			Subject:    "mailto:admin@example.edu",
			TTL:        60,
		},
		WorkerPool: config.WorkerPoolConfig{Size: 2},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := app.Build(ctx, cfg, zerolog.Nop(), app.Options{Notifications: true})
	require.NoError(t, err)
	defer services.Close()
	require.NotNil(t, services.Pool)
	services.Pool.Start(ctx)

	_, err = services.Registry.Initialize(ctx, cfg.Labs.Count)
	require.NoError(t, err)

	router := api.NewRouter(api.NewHandler(api.Deps{
		Store:    services.Store,
		Registry: services.Registry,
		History:  services.History,
		WebPush:  services.WebPush,
		Config:   cfg,
		Logger:   zerolog.Nop(),
	}))

	adminToken, _, err := auth.Issue("admin@example.edu", auth.RoleAdmin, cfg.Auth.Issuer, cfg.Auth.SigningKey, time.Minute)
	require.NoError(t, err)

	do := func(method, target string, body any, token string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, target, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// 3. A browser subscribes to lab 2.
	endpoint := pushServer.URL + "/push/" + uuid.NewString()
	p256dh, authSecret := browserKeys(t)
	w := do(http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":        endpoint,
		"p256dh":          p256dh,
		"auth":            authSecret,
		"subscribed_labs": []string{"2"},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// --- Step 1: Check in ---
	scan := map[string]any{"instructorId": "i-1", "instructor": "Dr. Cruz", "labNumber": "Comlab 2"}
	w = do(http.MethodPost, "/api/labs/scan-instructor", scan, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var lab model.Lab
	w = do(http.MethodGet, "/api/labs/2", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lab))
	assert.Equal(t, model.LabOccupied, lab.Status)
	assert.Equal(t, "Dr. Cruz", lab.InstructorName())
	require.NotNil(t, lab.TimeIn)

	// --- Step 2: Check out with a second scan ---
	w = do(http.MethodPost, "/api/labs/scan-instructor", scan, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Action string    `json:"action"`
		Lab    model.Lab `json:"lab"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "logout", res.Action)
	assert.Equal(t, model.LabAvailable, res.Lab.Status)

	// --- Step 3: The subscriber of lab 2 is notified ---
	select {
	case req := <-deliveries:
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "aes128gcm", req.Header.Get("Content-Encoding"))
		assert.Contains(t, req.Header.Get("Authorization"), "vapid")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the push delivery")
	}

	// The push service answered 410, so the subscription is removed.
	assert.Eventually(t, func() bool {
		w := do(http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), nil, "")
		return w.Code == http.StatusNotFound
	}, 5*time.Second, 20*time.Millisecond)

	// --- Step 4: The reconciled history shows one completed session ---
	w = do(http.MethodGet, "/api/history", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sessions []reconcile.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "Dr. Cruz", sessions[0].Instructor)
	assert.Equal(t, "2", sessions[0].LabNumber)
	assert.True(t, sessions[0].Completed)
	assert.NotEqual(t, reconcile.InProgress, sessions[0].Duration)
}

// browserKeys returns a subscription key pair as a browser would report it.
func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}
