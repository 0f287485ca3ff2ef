package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/catalog"
	"github.com/huugi-star/potenote-scanner-sub001/game/gacha"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
)

// GachaHandler handles pull REST endpoints.
type GachaHandler struct {
	engine    *gacha.Engine
	cat       *catalog.Catalog
	container *state.Container
}

// NewGachaHandler creates a new GachaHandler.
func NewGachaHandler(engine *gacha.Engine, cat *catalog.Catalog, container *state.Container) *GachaHandler {
	return &GachaHandler{engine: engine, cat: cat, container: container}
}

type pullRequest struct {
	PayWith string `json:"pay_with" binding:"omitempty,oneof=coins ticket"`
}

// Pull handles POST /api/gacha/pull.
func (h *GachaHandler) Pull(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var req pullRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payWith := gacha.PayCoins
	if req.PayWith == "ticket" {
		payWith = gacha.PayTicket
	}

	res, err := h.engine.Pull(payWith)
	if err != nil {
		if errors.Is(err, progress.ErrInsufficientCoins) || errors.Is(err, progress.ErrInsufficientTickets) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// TenPull handles POST /api/gacha/ten-pull.
func (h *GachaHandler) TenPull(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	results, err := h.engine.TenPull()
	if err != nil {
		if errors.Is(err, progress.ErrInsufficientCoins) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

/// Rates handles GET /api/gacha/rates: the published probability table,
// pricing and the caller's current pity counters.
func (h *GachaHandler) Rates(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var pity model.GachaPity
	if err := h.container.View(func(st *model.UserState) error {
		pity = st.Pity
		return nil
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rates":   h.cat.Rates,
		"pricing": h.cat.Pricing,
		"pity":    pity,
	})
}
