package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/cache"
	"github.com/huugi-star/potenote-scanner-sub001/config"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	mw "github.com/huugi-star/potenote-scanner-sub001/middleware"
	"github.com/huugi-star/potenote-scanner-sub001/syncer"
)

// AuthHandler handles session REST endpoints. Identity itself comes
// from an external provider; this layer only exchanges a verified user
// id for a server session and runs the sign-in sync.
type AuthHandler struct {
	coord  *syncer.Coordinator
	ledger *progress.Ledger
	cache  cache.Cache
	sec    config.SecurityConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(coord *syncer.Coordinator, ledger *progress.Ledger, c cache.Cache, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{coord: coord, ledger: ledger, cache: c, sec: sec}
}

type sessionRequest struct {
	UserID string `json:"user_id" binding:"required,min=1,max=64"`
}

// CreateSession handles POST /api/auth/session.
// Activates the user's state tree, reconciles it with the remote store
// and pays the daily login bonus before issuing the token.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coord.SignIn(c.Request.Context(), req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in failed"})
		return
	}

	bonus, err := h.ledger.GrantLoginBonus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	token, err := mw.GenerateToken(req.UserID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	// Store session in cache as a simple KV entry so Exists() works uniformly.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Set(ctx, "session:"+token, req.UserID, h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{
		"token":       token,
		"user_id":     req.UserID,
		"login_bonus": bonus,
	})
}

// SignOut handles POST /api/auth/signout.
// Flushes the tree to the remote store and deactivates the session.
func (h *AuthHandler) SignOut(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}

	if err := h.coord.SignOut(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-out failed"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, "session:"+tokenStr)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}
