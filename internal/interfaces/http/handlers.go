package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qqgate/qqgate/internal/infra"
	"github.com/qqgate/qqgate/internal/status"
)

// handleHealth returns the health status.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"uptime":  formatUptime(time.Since(s.startedAt)),
		"runtime": infra.GetRuntimeInfo(),
	})
}

// handleChannelStatus returns the live session snapshot per account.
func (s *Server) handleChannelStatus(c *gin.Context) {
	sessions := map[string]status.Session{}
	if s.sessionStatus != nil {
		sessions = s.sessionStatus()
	}
	c.JSON(http.StatusOK, gin.H{
		"channel":  "qq",
		"sessions": sessions,
	})
}

// handleAccounts returns the resolved account snapshots. Secrets are
// reported as presence only.
func (s *Server) handleAccounts(c *gin.Context) {
	if s.accounts == nil {
		c.JSON(http.StatusOK, gin.H{"accounts": []any{}})
		return
	}
	accounts, err := s.accounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	return d.String()
}
