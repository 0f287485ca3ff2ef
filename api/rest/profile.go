package rest

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/state"
)

// ProfileHandler serves progression, inventory and dex views.
type ProfileHandler struct {
	container *state.Container
	ledger    *progress.Ledger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(container *state.Container, ledger *progress.Ledger) *ProfileHandler {
	return &ProfileHandler{container: container, ledger: ledger}
}

// Profile handles GET /api/profile.
func (h *ProfileHandler) Profile(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var (
		prog model.Progression
		pity model.GachaPity
		inv  []model.InventoryEntry
	)
	err := h.container.View(func(st *model.UserState) error {
		prog = st.Progression
		pity = st.Pity
		inv = append([]model.InventoryEntry(nil), st.Inventory...)
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"progression": prog,
		"pity":        pity,
		"inventory":   inv,
	})
}

// knownFeatures guards the allowance endpoints against arbitrary keys.
var knownFeatures = map[string]bool{
	model.FeatureScan:        true,
	model.FeatureQuiz:        true,
	model.FeatureLecture:     true,
	model.FeatureTranslation: true,
}

// Allowance handles GET /api/profile/allowance/:feature.
func (h *ProfileHandler) Allowance(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	feature := c.Param("feature")
	if !knownFeatures[feature] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown feature"})
		return
	}
	a, err := h.ledger.CheckDailyLimit(feature)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, a)
}

// StartLecture handles POST /api/lecture/start.
// Lectures run entirely on the client; the server only meters them.
func (h *ProfileHandler) StartLecture(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	if err := h.ledger.ConsumeDailyLimit(model.FeatureLecture); err != nil {
		var limitErr *progress.LimitError
		if asLimitError(err, &limitErr) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": limitErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	a, _ := h.ledger.CheckDailyLimit(model.FeatureLecture)
	c.JSON(http.StatusOK, gin.H{"allowance": a})
}

type dexEntryView struct {
	Word      string `json:"word"`
	Meaning   string `json:"meaning,omitempty"`
	Captured  bool   `json:"captured"`
	FirstSeen string `json:"first_seen"`
}

// Dex handles GET /api/dex.
// Uncaptured entries stay masked: the word is listed but its meaning is
// withheld until the word has been captured at least once.
func (h *ProfileHandler) Dex(c *gin.Context) {
	if !requireActiveUser(c, h.container) {
		return
	}
	var entries []dexEntryView
	err := h.container.View(func(st *model.UserState) error {
		for _, e := range st.Dex {
			v := dexEntryView{
				Word:      e.Word,
				Captured:  e.CapturedAt != nil,
				FirstSeen: e.FirstSeen.Format("2006-01-02"),
			}
			if v.Captured {
				v.Meaning = e.Meaning
			}
			entries = append(entries, v)
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Word < entries[j].Word })
	c.JSON(http.StatusOK, gin.H{"dex": entries, "count": len(entries)})
}
