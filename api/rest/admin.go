package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/scheduler"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"github.com/huugi-star/potenote-scanner-sub001/syncer"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	container *state.Container
	coord     *syncer.Coordinator
	sched     *scheduler.Scheduler
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(container *state.Container, coord *syncer.Coordinator, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{container: container, coord: coord, sched: sched, logger: logger}
}

// StateDump returns the active user's full state tree.
// GET /api/admin/state
func (h *AdminHandler) StateDump(c *gin.Context) {
	var dump *model.UserState
	err := h.container.View(func(st *model.UserState) error {
		cp := *st
		dump = &cp
		return nil
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": dump})
}

// SyncFlush forces an immediate remote push of the active user's tree.
// POST /api/admin/sync/flush
func (h *AdminHandler) SyncFlush(c *gin.Context) {
	h.coord.Flush(c.Request.Context())
	h.logger.Info("admin forced sync flush", zap.String("user_id", h.container.UserID()))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
