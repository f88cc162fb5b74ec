package httpserver_test

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/events"
	"github.com/MrSnakeDoc/wagate/internal/gateway"
	"github.com/MrSnakeDoc/wagate/internal/httpserver"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/index"
	"github.com/MrSnakeDoc/wagate/internal/lifecycle"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/qr"
	"github.com/MrSnakeDoc/wagate/internal/transport/simulated"
)

func newDeps(t *testing.T) deps.Deps {
	t.Helper()
	log := logger.New("error", false)
	tr := simulated.New(simulated.Options{ReconnectDelay: time.Hour}, log)
	hub := events.NewHub()
	reg := lifecycle.New(index.NewMemoryIndex(), tr, lifecycle.Options{
		Notifier: hub,
		Hooks:    gateway.Hooks(tr, log),
	}, log)
	tr.Bind(reg)
	t.Cleanup(tr.Shutdown)

	return deps.Deps{
		Logger:         log,
		StartTime:      time.Now(),
		Version:        "test",
		TimeNow:        time.Now,
		RequestTimeout: 5 * time.Second,
		Gateway:        gateway.New(reg, tr, gateway.Options{QR: qr.DefaultOptions()}, log),
		Hub:            hub,
		WebhookEnabled: true,
		SendRatePerMin: 60,
		SendBurst:      100,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorEnvelope struct {
	Error struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Instance string `json:"instanceName"`
		State    string `json:"state"`
	} `json:"error"`
}

type instanceEnvelope struct {
	Instance domain.Instance `json:"instance"`
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, code, decode[errorEnvelope](t, rec).Error.Code)
}

func TestInstanceLifecycleOverHTTP(t *testing.T) {
	h := httpserver.NewRouter(logger.New("error", false), newDeps(t))

	rec := do(t, h, http.MethodPost, "/instance/create", `{"instanceName":"sales"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StateCreated, decode[instanceEnvelope](t, rec).Instance.State)

	requireCode(t, do(t, h, http.MethodPost, "/instance/create", `{"instanceName":"sales"}`),
		http.StatusConflict, domain.CodeAlreadyExists)

	// QR code as JSON
	rec = do(t, h, http.MethodGet, "/instance/connect/sales", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := decode[map[string]any](t, rec)
	assert.NotEmpty(t, code["code"])
	assert.Equal(t, false, code["reused"])
	assert.True(t, strings.HasPrefix(code["base64"].(string), "data:image/png;base64,"))

	// same code as an image
	rec = do(t, h, http.MethodGet, "/instance/qrcode/sales?format=png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)

	requireCode(t, do(t, h, http.MethodPost, "/message/sendText/sales", `{"number":"5511999999999","text":"hi"}`),
		http.StatusConflict, domain.CodeNotConnected)

	rec = do(t, h, http.MethodPost, "/webhook/sales", `{"event":"qrcode.scanned"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StateConnecting, decode[instanceEnvelope](t, rec).Instance.State)

	rec = do(t, h, http.MethodPost, "/webhook/sales", `{"event":"connection.open"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StateConnected, decode[instanceEnvelope](t, rec).Instance.State)

	requireCode(t, do(t, h, http.MethodGet, "/instance/connect/sales", ""),
		http.StatusConflict, domain.CodeAlreadyConnected)

	rec = do(t, h, http.MethodPost, "/message/sendText/sales", `{"number":"5511999999999","text":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[domain.Receipt](t, rec)
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, "sales", receipt.Instance)

	rec = do(t, h, http.MethodGet, "/instance/fetchInstances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.Summary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StateConnected, list[0].State)

	rec = do(t, h, http.MethodDelete, "/instance/delete/sales", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	requireCode(t, do(t, h, http.MethodGet, "/instance/connectionState/sales", ""),
		http.StatusNotFound, domain.CodeNotFound)
	requireCode(t, do(t, h, http.MethodDelete, "/instance/delete/sales", ""),
		http.StatusNotFound, domain.CodeNotFound)
}

func TestRequestValidation(t *testing.T) {
	h := httpserver.NewRouter(logger.New("error", false), newDeps(t))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty name", http.MethodPost, "/instance/create", `{"instanceName":""}`, http.StatusBadRequest, domain.CodeInvalidArgument},
		{"missing body", http.MethodPost, "/instance/create", "", http.StatusBadRequest, domain.CodeInvalidArgument},
		{"broken json", http.MethodPost, "/instance/create", `{"instanceName":`, http.StatusBadRequest, domain.CodeInvalidArgument},
		{"unknown instance", http.MethodGet, "/instance/connect/ghost", "", http.StatusNotFound, domain.CodeNotFound},
		{"unknown webhook event", http.MethodPost, "/webhook/ghost", `{"event":"bogus"}`, http.StatusBadRequest, domain.CodeInvalidArgument},
		{"logout unknown", http.MethodDelete, "/instance/logout/ghost", "", http.StatusNotFound, domain.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, do(t, h, tt.method, tt.path, tt.body), tt.status, tt.code)
		})
	}
}

func TestLogoutDeletesByDefault(t *testing.T) {
	d := newDeps(t)
	h := httpserver.NewRouter(d.Logger, d)

	do(t, h, http.MethodPost, "/instance/create", `{"instanceName":"sales"}`)
	do(t, h, http.MethodGet, "/instance/connect/sales", "")
	do(t, h, http.MethodPost, "/webhook/sales", `{"event":"qrcode.scanned"}`)
	do(t, h, http.MethodPost, "/webhook/sales", `{"event":"connection.open"}`)

	rec := do(t, h, http.MethodDelete, "/instance/logout/sales", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireCode(t, do(t, h, http.MethodGet, "/instance/connectionState/sales", ""),
		http.StatusNotFound, domain.CodeNotFound)
}

func TestSendTextIsRateLimited(t *testing.T) {
	d := newDeps(t)
	d.SendBurst = 1
	d.SendRatePerMin = 1
	h := httpserver.NewRouter(d.Logger, d)

	do(t, h, http.MethodPost, "/instance/create", `{"instanceName":"sales"}`)
	body := `{"number":"5511999999999","text":"hi"}`

	first := do(t, h, http.MethodPost, "/message/sendText/sales", body)
	assert.Equal(t, http.StatusConflict, first.Code)

	second := do(t, h, http.MethodPost, "/message/sendText/sales", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestAdminRoutesHonourCIDRs(t *testing.T) {
	d := newDeps(t)
	d.AllowedCIDRS = []string{"10.0.0.0/8"}
	h := httpserver.NewRouter(d.Logger, d)

	// httptest requests come from 192.0.2.1
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/instance/fetchInstances", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestOptionalRoutes(t *testing.T) {
	d := newDeps(t)
	d.WebhookEnabled = false
	h := httpserver.NewRouter(d.Logger, d)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/webhook/sales", `{"event":"connection.open"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/seed/reload", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/events/recent", "").Code)

	d.SeedReloadTrigger = make(chan struct{}, 1)
	h = httpserver.NewRouter(d.Logger, d)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/seed/reload", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/seed/reload", "").Code)
}

func TestProbes(t *testing.T) {
	d := newDeps(t)
	h := httpserver.NewRouter(d.Logger, d)
	do(t, h, http.MethodPost, "/instance/create", `{"instanceName":"sales"}`)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["instances"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	rec = do(t, h, http.MethodGet, "/infra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	infra := decode[map[string]any](t, rec)
	components := infra["components"].(map[string]any)
	assert.Contains(t, components, "transport")
	assert.Contains(t, components, "registry")
}

func TestCORSPreflight(t *testing.T) {
	h := httpserver.NewRouter(logger.New("error", false), newDeps(t))

	req := httptest.NewRequest(http.MethodOptions, "/instance/create", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://panel.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEventStream(t *testing.T) {
	d := newDeps(t)
	srv := httptest.NewServer(httpserver.NewRouter(d.Logger, d))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?instance=sales"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return d.Hub.Subscribers() > 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = d.Gateway.Create("other")
	require.NoError(t, err)
	_, err = d.Gateway.Create("sales")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "sales", ev.Instance, "events of other instances are filtered out")
	assert.Equal(t, domain.EventInstanceCreated, ev.Type)
}
