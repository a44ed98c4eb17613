package ads

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func newTestRouter(t *testing.T, h *harness, admin ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(h.m, zaptest.NewLogger(t)).Routes(r.Group("/api/v1"), admin...)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHandlerInitialize(t *testing.T) {
	h := newHarness(t)
	r := newTestRouter(t, h)

	code, env := do(t, r, http.MethodPost, "/api/v1/initialize", nil)
	require.Equal(t, http.StatusOK, code)
	var status InitStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Ready)
	assert.Equal(t, "Not specified", status.AppID)

	code, env = do(t, r, http.MethodPost, "/api/v1/initialize", gin.H{"app_id": "app-9"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "app-9", status.AppID)
}

func TestHandlerBannerLifecycle(t *testing.T) {
	h := newHarness(t)
	h.vendor.autoFill = true
	r := newTestRouter(t, h)

	code, env := do(t, r, http.MethodPost, "/api/v1/banners", gin.H{"ad_unit_id": "unit1", "size": 0})
	require.Equal(t, http.StatusOK, code, env.Error)
	var data struct {
		BannerID string `json:"banner_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "b1", data.BannerID)

	code, _ = do(t, r, http.MethodPost, "/api/v1/banners/b1/show", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPost, "/api/v1/banners/b1/hide", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, http.MethodDelete, "/api/v1/banners/b1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodDelete, "/api/v1/banners/b1", nil)
	assert.Equal(t, http.StatusOK, code, "dispose is idempotent")

	code, env = do(t, r, http.MethodPost, "/api/v1/banners/b1/show", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestHandlerBannerValidation(t *testing.T) {
	h := newHarness(t)
	r := newTestRouter(t, h)

	code, env := do(t, r, http.MethodPost, "/api/v1/banners", gin.H{"size": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", env.Code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/banners", gin.H{"ad_unit_id": "unit"})
	assert.Equal(t, http.StatusBadRequest, code, "size is required")
	assert.Zero(t, h.vendor.loadCount())
}

func TestHandlerUnknownBannerSize(t *testing.T) {
	h := newHarness(t)
	h.vendor.autoFill = true
	r := newTestRouter(t, h)

	for _, size := range []int{-1, 42} {
		code, env := do(t, r, http.MethodPost, "/api/v1/banners", gin.H{"ad_unit_id": "unit", "size": size})
		require.Equal(t, http.StatusOK, code, env.Error)
		assert.Equal(t, SizeBanner, h.vendor.request(h.vendor.lastLoad(t)).Size)
	}
}

func TestHandlerLoadError(t *testing.T) {
	h := newHarness(t)
	r := newTestRouter(t, h)

	done := make(chan struct{})
	var code int
	var env envelope
	go func() {
		defer close(done)
		code, env = do(t, r, http.MethodPost, "/api/v1/natives", gin.H{"ad_unit_id": "native"})
	}()
	eventually(t, func() bool { return h.vendor.loadCount() == 1 }, "load issued")
	h.vendor.callbacks().AdFailedToLoad(h.vendor.lastLoad(t), &LoadError{Message: "No fill.", Code: 3, Domain: "test"})
	<-done

	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "AD_LOAD_ERROR", env.Code)
	assert.Equal(t, "No fill.", env.Error)
	assert.JSONEq(t, `{"code":3,"domain":"test"}`, string(env.Details))
}

func TestHandlerFullScreen(t *testing.T) {
	h := newHarness(t)
	h.vendor.autoFill = true
	r := newTestRouter(t, h)

	code, env := do(t, r, http.MethodPost, "/api/v1/fullscreen/interstitial/show", gin.H{"ad_unit_id": "unitA"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "AD_NOT_READY", env.Code)

	code, env = do(t, r, http.MethodPost, "/api/v1/fullscreen/interstitial/load", gin.H{"ad_unit_id": "unitA"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.JSONEq(t, "true", string(env.Data))

	code, _ = do(t, r, http.MethodPost, "/api/v1/fullscreen/interstitial/show", gin.H{"ad_unit_id": "unitA"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StateShowing, h.session(KindInterstitial, "unitA").State)

	code, env = do(t, r, http.MethodPost, "/api/v1/fullscreen/interstitial/load", gin.H{"ad_unit_id": "unitA"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "PRESENTATION_IN_PROGRESS", env.Code)

	code, env = do(t, r, http.MethodPost, "/api/v1/fullscreen/banner/load", gin.H{"ad_unit_id": "unitA"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", env.Code)
}

func TestHandlerNoPresentationSurface(t *testing.T) {
	h := newHarness(t)
	h.vendor.autoFill = true
	r := newTestRouter(t, h)

	code, _ := do(t, r, http.MethodPost, "/api/v1/fullscreen/rewarded/load", gin.H{"ad_unit_id": "u"})
	require.Equal(t, http.StatusOK, code)
	h.vendor.showErr = ErrNoPresentationSurface

	code, env := do(t, r, http.MethodPost, "/api/v1/fullscreen/rewarded/show", gin.H{"ad_unit_id": "u"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "NO_PRESENTATION_SURFACE", env.Code)
}

func TestHandlerLoadTimeout(t *testing.T) {
	h := newHarness(t)
	r := newTestRouter(t, h)

	done := make(chan struct{})
	var code int
	var env envelope
	go func() {
		defer close(done)
		code, env = do(t, r, http.MethodPost, "/api/v1/banners", gin.H{"ad_unit_id": "slow", "size": 1})
	}()
	eventually(t, func() bool { return h.vendor.loadCount() == 1 }, "load issued")
	h.clock.Add(DefaultConfig().LoadTimeout)
	<-done

	assert.Equal(t, http.StatusGatewayTimeout, code)
	assert.Equal(t, "AD_LOAD_TIMEOUT", env.Code)
}

func TestHandlerSettingsAndDiagnostics(t *testing.T) {
	h := newHarness(t)
	r := newTestRouter(t, h)

	code, _ := do(t, r, http.MethodPut, "/api/v1/settings/timeout", gin.H{"seconds": 2.5})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPut, "/api/v1/settings/timeout", gin.H{"seconds": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodPut, "/api/v1/settings/auto-reload", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPut, "/api/v1/settings/auto-reload", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := do(t, r, http.MethodGet, "/api/v1/diagnostics", nil)
	require.Equal(t, http.StatusOK, code)
	var stats Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 2.5, stats.LoadTimeoutSec)
	assert.False(t, stats.AutoReload)
}

func TestHandlerTimeoutAboveWriteBudget(t *testing.T) {
	vendor := newFakeVendor()
	m := NewManager(vendor, nil, Config{MaxLoadTimeout: 89 * time.Second}, zaptest.NewLogger(t))
	t.Cleanup(m.Close)
	r := newTestRouter(t, &harness{m: m, vendor: vendor})

	code, env := do(t, r, http.MethodPut, "/api/v1/settings/timeout", gin.H{"seconds": 120})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", env.Code)
	assert.Equal(t, 30*time.Second, m.Config().LoadTimeout)

	code, _ = do(t, r, http.MethodPut, "/api/v1/settings/timeout", gin.H{"seconds": 89})
	assert.Equal(t, http.StatusOK, code)
}

func TestHandlerAdminGuard(t *testing.T) {
	h := newHarness(t)
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "code": "FORBIDDEN"})
	}
	r := newTestRouter(t, h, deny)

	code, _ := do(t, r, http.MethodGet, "/api/v1/diagnostics", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = do(t, r, http.MethodPut, "/api/v1/settings/auto-reload", gin.H{"enabled": true})
	assert.Equal(t, http.StatusForbidden, code)
	assert.True(t, h.m.Config().AutoReload)

	code, _ = do(t, r, http.MethodPost, "/api/v1/initialize", nil)
	assert.Equal(t, http.StatusOK, code, "bridge operations are not guarded")
}
