package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	mw "github.com/huugi-star/potenote-scanner-sub001/middleware"
	"github.com/huugi-star/potenote-scanner-sub001/state"
)

// requireActiveUser verifies the token's user owns the active state
// tree. The engine serves one signed-in user at a time; a token for
// anyone else must re-establish a session first.
func requireActiveUser(c *gin.Context, container *state.Container) bool {
	if mw.GetUserID(c) != container.UserID() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session not active, sign in again"})
		return false
	}
	return true
}

// asLimitError unwraps a daily-limit failure.
func asLimitError(err error, target **progress.LimitError) bool {
	return errors.As(err, target)
}
