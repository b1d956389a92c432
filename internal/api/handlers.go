package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/models"
)

// StatsRunner computes TransferStats; pipeline.Pipeline implements it.
type StatsRunner interface {
	RunWindow(ctx context.Context, chain string, w models.Window) (*models.TransferStats, error)
}

// ChainLister describes the served chains; metadata.Resolver implements it.
type ChainLister interface {
	All(ctx context.Context) []models.ChainInfo
}

type Handler struct {
	Stats   StatsRunner
	Chains  ChainLister // optional
	Window  models.Window
	Service string
}

func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/api/transfers", h.Transfers)
	r.GET("/api/chains", h.ListChains)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": h.Service})
}

// GET /api/transfers?chain=ethereum[&start=&end=]
func (h *Handler) Transfers(c *gin.Context) {
	chain := c.Query("chain")
	if chain == "" {
		httpError(c, apperr.Config("chain", "query parameter is required"))
		return
	}
	w, err := parseWindow(c, h.Window)
	if err != nil {
		httpError(c, err)
		return
	}
	stats, err := h.Stats.RunWindow(c.Request.Context(), chain, w)
	if err != nil {
		httpError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/chains
func (h *Handler) ListChains(c *gin.Context) {
	chains := []models.ChainInfo{}
	if h.Chains != nil {
		chains = h.Chains.All(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{"chains": chains})
}

// parseWindow overrides either end of def with the start/end query values.
func parseWindow(c *gin.Context, def models.Window) (models.Window, error) {
	w := def
	for _, p := range []struct {
		name string
		dst  *uint64
	}{{"start", &w.Start}, {"end", &w.End}} {
		v, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return models.Window{}, apperr.Config(p.name, "not a unix timestamp: %q", v)
		}
		*p.dst = n
	}
	return w, nil
}

func statusFor(err error) int {
	switch {
	case apperr.IsConfiguration(err):
		return http.StatusBadRequest
	case apperr.IsUpstream(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func httpError(c *gin.Context, err error) {
	code := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error(), "requestId": c.GetString(requestIDKey)})
}
