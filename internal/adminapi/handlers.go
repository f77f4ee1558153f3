package adminapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wr-desk/warroom/internal/domain"
)

const defaultDeliberationLimit = 25

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "warroom-admin",
		"status":  "running",
		"uptime":  time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
}

// handleCurrentWeights returns the Weight Adjuster's current AgentWeights.
func (s *Server) handleCurrentWeights(c *gin.Context) {
	weights, err := s.store.CurrentWeights(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no weights version has been recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, weights)
}

// handleOpenPositions returns every currently open ShadowPosition.
func (s *Server) handleOpenPositions(c *gin.Context) {
	positions, err := s.store.OpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []*domain.ShadowPosition{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// handleRecentDeliberations returns the most recent War Room sessions
// across every ticker; ?limit caps the result (default 25).
func (s *Server) handleRecentDeliberations(c *gin.Context) {
	limit := defaultDeliberationLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	delibs, err := s.store.ListRecentDeliberations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if delibs == nil {
		delibs = []*domain.Deliberation{}
	}
	c.JSON(http.StatusOK, gin.H{"deliberations": delibs, "count": len(delibs)})
}

// handleSignalCounters returns the Signal Deduper's running totals — the
// only introspection the dedup/quality-filter stage offers, since it is
// otherwise a write-only Prometheus emitter from this process's point of
// view.
func (s *Server) handleSignalCounters(c *gin.Context) {
	if s.deduper == nil {
		c.JSON(http.StatusOK, gin.H{"received": 0, "deduped": 0, "filtered_low_confidence": 0})
		return
	}
	counts := s.deduper.Counts()
	c.JSON(http.StatusOK, gin.H{
		"received":                counts.Received,
		"deduped":                 counts.Deduped,
		"filtered_low_confidence": counts.FilteredLowConfidence,
	})
}
