package rest

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/game/capture"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
)

// ScanHandler handles word-scan REST endpoints.
type ScanHandler struct {
	engine    *capture.Engine
	ledger    *progress.Ledger
	container *state.Container
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(engine *capture.Engine, ledger *progress.Ledger, container *state.Container) *ScanHandler {
	return &ScanHandler{engine: engine, ledger: ledger, container: container}
}

type scanWordRequest struct {
	Word         string   `json:"word" binding:"required"`
	Meaning      string   `json:"meaning"`
	PartOfSpeech string   `json:"part_of_speech"`
	Variants     []string `json:"variants"`
	Example      string   `json:"example"`
}

type createScanRequest struct {
	Title string            `json:"title" binding:"required,max=128"`
	Words []scanWordRequest `json:"words" binding:"required,min=1,dive"`
}

// Create handles POST /api/scans.
// Words arrive already extracted by the upstream OCR/LLM pipeline.
// Counts against the scan daily limit.
func (h *ScanHandler) Create(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var req createScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.ConsumeDailyLimit(model.FeatureScan); err != nil {
		var limitErr *progress.LimitError
		if asLimitError(err, &limitErr) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": limitErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	words := make([]model.WordEnemy, len(req.Words))
	for i, w := range req.Words {
		words[i] = model.WordEnemy{
			Word:         w.Word,
			Meaning:      w.Meaning,
			PartOfSpeech: w.PartOfSpeech,
			Variants:     w.Variants,
			Example:      w.Example,
		}
	}

	id, err := h.engine.AddScan(req.Title, words)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	_ = h.ledger.CountScan()

	progressSnap, _ := h.engine.Progress(id)
	c.JSON(http.StatusCreated, gin.H{"scan_id": id, "progress": progressSnap})
}

type scanSummary struct {
	ID        string                  `json:"id"`
	Title     string                  `json:"title"`
	CreatedAt string                  `json:"created_at"`
	WordCount int                     `json:"word_count"`
	Progress  model.AdventureSnapshot `json:"progress"`
}

// List handles GET /api/scans.
func (h *ScanHandler) List(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var summaries []scanSummary
	err := h.container.View(func(st *model.UserState) error {
		for _, scan := range st.Scans {
			summaries = append(summaries, scanSummary{
				ID:        scan.ID,
				Title:     scan.Title,
				CreatedAt: scan.CreatedAt.Format("2006-01-02 15:04:05"),
				WordCount: len(scan.Words),
			})
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	for i := range summaries {
		summaries[i].Progress, _ = h.engine.Progress(summaries[i].ID)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt > summaries[j].CreatedAt })
	c.JSON(http.StatusOK, gin.H{"scans": summaries, "count": len(summaries)})
}

// Get handles GET /api/scans/:id.
func (h *ScanHandler) Get(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	id := c.Param("id")
	var scan model.WordScan
	err := h.container.View(func(st *model.UserState) error {
		s, ok := st.Scans[id]
		if !ok {
			return capture.ErrScanNotFound
		}
		scan = *s
		return nil
	})
	if errors.Is(err, capture.ErrScanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	progressSnap, _ := h.engine.Progress(id)
	c.JSON(http.StatusOK, gin.H{"scan": scan, "progress": progressSnap})
}

// Refill handles POST /api/scans/:id/refill: an explicit re-roll of the
// active pool.
func (h *ScanHandler) Refill(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	id := c.Param("id")
	if err := h.engine.RefillPool(id); err != nil {
		if errors.Is(err, capture.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	progressSnap, _ := h.engine.Progress(id)
	c.JSON(http.StatusOK, gin.H{"scan_id": id, "progress": progressSnap})
}
