package ads

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/adbroker/pkg/response"
)

// InitializeRequest is the body for POST /initialize.
type InitializeRequest struct {
	AppID string `json:"app_id"`
}

// LoadBannerRequest is the body for POST /banners. An unknown size class loads a standard banner.
type LoadBannerRequest struct {
	AdUnitID string `json:"ad_unit_id" binding:"required"`
	Size     *int   `json:"size" binding:"required"`
}

// LoadNativeRequest is the body for POST /natives.
type LoadNativeRequest struct {
	AdUnitID string         `json:"ad_unit_id" binding:"required"`
	Options  *NativeOptions `json:"options"`
}

// FullScreenRequest is the body for POST /fullscreen/:kind/load and /show.
type FullScreenRequest struct {
	AdUnitID string `json:"ad_unit_id" binding:"required"`
}

// TimeoutRequest is the body for PUT /settings/timeout.
type TimeoutRequest struct {
	Seconds float64 `json:"seconds" binding:"required,gt=0"`
}

// AutoReloadRequest is the body for PUT /settings/auto-reload.
type AutoReloadRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// Handler exposes the Manager to the UI bridge over HTTP.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates an ads handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

// Routes registers the bridge endpoints. admin guards settings and diagnostics.
func (h *Handler) Routes(r gin.IRoutes, admin ...gin.HandlerFunc) {
	r.POST("/initialize", h.Initialize)

	r.POST("/banners", h.LoadBanner)
	r.POST("/banners/:id/show", h.ShowBanner)
	r.POST("/banners/:id/hide", h.HideBanner)
	r.DELETE("/banners/:id", h.DisposeBanner)

	r.POST("/natives", h.LoadNative)
	r.POST("/natives/:id/show", h.ShowNative)
	r.DELETE("/natives/:id", h.DisposeNative)

	r.POST("/fullscreen/:kind/load", h.LoadFullScreen)
	r.POST("/fullscreen/:kind/show", h.ShowFullScreen)

	guarded := func(hf gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, admin...), hf)
	}
	r.PUT("/settings/timeout", guarded(h.SetTimeout)...)
	r.PUT("/settings/auto-reload", guarded(h.SetAutoReload)...)
	r.GET("/diagnostics", guarded(h.Diagnostics)...)
}

// Initialize handles POST /initialize.
func (h *Handler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	status, err := h.manager.Initialize(c.Request.Context(), req.AppID)
	if err != nil {
		h.logger.Error("initialize failed", zap.Error(err))
		response.ServiceUnavailable(c, response.CodeUnavailable, err.Error())
		return
	}
	response.OK(c, status)
}

// LoadBanner handles POST /banners and answers once the load resolves.
func (h *Handler) LoadBanner(c *gin.Context) {
	var req LoadBannerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "ad unit id and size are required: "+err.Error())
		return
	}
	p, err := h.manager.LoadBanner(req.AdUnitID, SizeClass(*req.Size))
	if err != nil {
		h.fail(c, err)
		return
	}
	out, ok := h.await(c, p)
	if !ok {
		return
	}
	response.OK(c, gin.H{"banner_id": out.ID})
}

// ShowBanner handles POST /banners/:id/show.
func (h *Handler) ShowBanner(c *gin.Context) {
	if err := h.manager.ShowBanner(Identifier(c.Param("id"))); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, true)
}

// HideBanner handles POST /banners/:id/hide.
func (h *Handler) HideBanner(c *gin.Context) {
	if err := h.manager.HideBanner(Identifier(c.Param("id"))); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, true)
}

// DisposeBanner handles DELETE /banners/:id. Unknown ids succeed.
func (h *Handler) DisposeBanner(c *gin.Context) {
	_ = h.manager.DisposeBanner(Identifier(c.Param("id")))
	response.OK(c, true)
}

// LoadNative handles POST /natives and answers once the load resolves.
func (h *Handler) LoadNative(c *gin.Context) {
	var req LoadNativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "ad unit id is required: "+err.Error())
		return
	}
	opts := DefaultNativeOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	p, err := h.manager.LoadNative(req.AdUnitID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	out, ok := h.await(c, p)
	if !ok {
		return
	}
	response.OK(c, gin.H{"native_ad_id": out.ID})
}

// ShowNative handles POST /natives/:id/show.
func (h *Handler) ShowNative(c *gin.Context) {
	if err := h.manager.ShowNative(Identifier(c.Param("id"))); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, true)
}

// DisposeNative handles DELETE /natives/:id. Unknown ids succeed.
func (h *Handler) DisposeNative(c *gin.Context) {
	_ = h.manager.DisposeNative(Identifier(c.Param("id")))
	response.OK(c, true)
}

// LoadFullScreen handles POST /fullscreen/:kind/load.
func (h *Handler) LoadFullScreen(c *gin.Context) {
	kind, req, ok := h.bindFullScreen(c)
	if !ok {
		return
	}
	p, err := h.manager.LoadFullScreen(req.AdUnitID, kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, ok := h.await(c, p); !ok {
		return
	}
	response.OK(c, true)
}

// ShowFullScreen handles POST /fullscreen/:kind/show.
func (h *Handler) ShowFullScreen(c *gin.Context) {
	kind, req, ok := h.bindFullScreen(c)
	if !ok {
		return
	}
	if err := h.manager.ShowFullScreen(req.AdUnitID, kind); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, true)
}

func (h *Handler) bindFullScreen(c *gin.Context) (Kind, FullScreenRequest, bool) {
	var req FullScreenRequest
	kind, err := ParseFullScreenKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return "", req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "ad unit id is required: "+err.Error())
		return "", req, false
	}
	return kind, req, true
}

// SetTimeout handles PUT /settings/timeout.
func (h *Handler) SetTimeout(c *gin.Context) {
	var req TimeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "seconds must be a positive number: "+err.Error())
		return
	}
	if err := h.manager.SetTimeout(time.Duration(req.Seconds * float64(time.Second))); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, true)
}

// SetAutoReload handles PUT /settings/auto-reload.
func (h *Handler) SetAutoReload(c *gin.Context) {
	var req AutoReloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "enabled is required: "+err.Error())
		return
	}
	h.manager.SetAutoReload(*req.Enabled)
	response.OK(c, true)
}

// Diagnostics handles GET /diagnostics.
func (h *Handler) Diagnostics(c *gin.Context) {
	response.OK(c, h.manager.Stats())
}

// await blocks on p until it resolves or the client goes away, writing the failure response itself.
func (h *Handler) await(c *gin.Context, p *Promise) (Outcome, bool) {
	out, err := p.Wait(c.Request.Context())
	if err == nil {
		err = out.Err
	}
	if err != nil {
		h.fail(c, err)
		return Outcome{}, false
	}
	return out, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	var lerr *LoadError
	switch {
	case errors.Is(err, ErrInvalidArgument):
		response.BadRequest(c, err.Error())
	case errors.As(err, &lerr):
		response.Fail(c, http.StatusBadGateway, response.CodeAdLoadError, lerr.Message, gin.H{"code": lerr.Code, "domain": lerr.Domain})
	case errors.Is(err, ErrLoadTimeout), errors.Is(err, ErrStale):
		response.Fail(c, http.StatusGatewayTimeout, response.CodeAdLoadTimeout, err.Error(), nil)
	case errors.Is(err, ErrNotReady):
		response.Conflict(c, response.CodeAdNotReady, err.Error())
	case errors.Is(err, ErrLoadAlreadyInProgress):
		response.Conflict(c, response.CodeLoadInProgress, err.Error())
	case errors.Is(err, ErrPresentationInProgress):
		response.Conflict(c, response.CodePresentationActive, err.Error())
	case errors.Is(err, ErrNoPresentationSurface):
		response.ServiceUnavailable(c, response.CodeNoPresentationSurface, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrClosed):
		response.ServiceUnavailable(c, response.CodeUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("client stopped waiting for ad load", zap.String("path", c.Request.URL.Path))
		response.Fail(c, http.StatusGatewayTimeout, response.CodeAdLoadTimeout, "request ended before the ad load resolved", nil)
	default:
		h.logger.Error("ads request failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
		response.Internal(c, err.Error())
	}
}
