package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/game/capture"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
)

// BattleHandler handles word-battle REST endpoints.
type BattleHandler struct {
	engine    *capture.Engine
	ledger    *progress.Ledger
	container *state.Container
}

// NewBattleHandler creates a new BattleHandler.
func NewBattleHandler(engine *capture.Engine, ledger *progress.Ledger, container *state.Container) *BattleHandler {
	return &BattleHandler{engine: engine, ledger: ledger, container: container}
}

type startBattleRequest struct {
	ScanID string `json:"scan_id" binding:"required"`
	Mode   string `json:"mode" binding:"omitempty,oneof=explore retry"`
}

// Start handles POST /api/battle/start.
// Counts against the quiz daily limit. An empty question list means
// the scan currently has no askable targets — the client should offer
// a refill, not retry.
func (h *BattleHandler) Start(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var req startBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode := capture.ModeExplore
	if req.Mode == string(capture.ModeRetry) {
		mode = capture.ModeRetry
	}

	if err := h.ledger.ConsumeDailyLimit(model.FeatureQuiz); err != nil {
		var limitErr *progress.LimitError
		if asLimitError(err, &limitErr) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": limitErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	sess, err := h.engine.StartSession(c.Request.Context(), req.ScanID, mode)
	if err != nil {
		if errors.Is(err, capture.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Resume handles GET /api/battle.
func (h *BattleHandler) Resume(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	sess, err := h.engine.ResumeSession(c.Request.Context())
	if err != nil {
		if errors.Is(err, capture.ErrNoSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active battle"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

type answerRequest struct {
	Answer   string `json:"answer"`
	TimedOut bool   `json:"timed_out"`
}

// Answer handles POST /api/battle/answer.
func (h *BattleHandler) Answer(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.engine.SubmitAnswer(c.Request.Context(), req.Answer, req.TimedOut)
	if err != nil {
		if errors.Is(err, capture.ErrNoSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active battle"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// End handles POST /api/battle/end.
// Writes the scan's adventure snapshot and tallies the quiz run.
func (h *BattleHandler) End(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	result, err := h.engine.EndSession(c.Request.Context())
	if err != nil {
		if errors.Is(err, capture.ErrNoSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active battle"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	_ = h.ledger.CountQuiz(result.CorrectCount)
	c.JSON(http.StatusOK, gin.H{"result": result})
}
