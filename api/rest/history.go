package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/game/history"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
)

// HistoryHandler handles quiz/translation history REST endpoints.
type HistoryHandler struct {
	store     *history.Store
	ledger    *progress.Ledger
	container *state.Container
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(store *history.Store, ledger *progress.Ledger, container *state.Container) *HistoryHandler {
	return &HistoryHandler{store: store, ledger: ledger, container: container}
}

type addHistoryRequest struct {
	SourceText string          `json:"source_text" binding:"required"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
}

// AddQuiz handles POST /api/history/quiz.
// The payload is the raw LLM quiz result; a shape mismatch is a 422.
func (h *HistoryHandler) AddQuiz(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var req addHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.store.AddQuiz(req.SourceText, req.Payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

// AddTranslation handles POST /api/history/translation.
// Counts against the translation daily limit.
func (h *HistoryHandler) AddTranslation(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var req addHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.ConsumeDailyLimit(model.FeatureTranslation); err != nil {
		var limitErr *progress.LimitError
		if asLimitError(err, &limitErr) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": limitErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	rec, err := h.store.AddTranslation(req.SourceText, req.Payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

// ListQuiz handles GET /api/history/quiz.
func (h *HistoryHandler) ListQuiz(c *gin.Context) {
	h.list(c, model.HistoryKindQuiz)
}

// ListTranslation handles GET /api/history/translation.
func (h *HistoryHandler) ListTranslation(c *gin.Context) {
	h.list(c, model.HistoryKindTranslation)
}

func (h *HistoryHandler) list(c *gin.Context, kind model.HistoryKind) {
	if !requireActiveUser(c, h.container) {
		return
	}
	limit := 30
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	records, err := h.store.Recent(kind, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
