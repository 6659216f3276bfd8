// Package api exposes the read-only HTTP surface: recent movers, research
// reports, and aggregate prediction stats. Handlers only read from the
// store; all writes happen in the pipelines.
package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coinsentry/engine/internal/models"
	"github.com/coinsentry/engine/internal/prediction"
	"github.com/coinsentry/engine/internal/store"
)

// Store is the read surface the handlers need.
type Store interface {
	MoversSince(ctx context.Context, since time.Time, direction string, limit int) ([]models.MoverEvent, error)
	CountMoversSince(ctx context.Context, since time.Time) (int, error)
	ResearchReportByEvent(ctx context.Context, eventID string) (*models.ResearchReport, error)
	PredictionStatusCountsSince(ctx context.Context, since time.Time) (map[string]int, error)
	DailyStatsSince(ctx context.Context, since string) ([]models.DailyStats, error)
	CountResearchSince(ctx context.Context, since time.Time) (int, error)
}

// Handler serves the read API.
type Handler struct {
	store Store
}

// NewHandler creates the API handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the API routes on the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/movers", h.getMovers)
		api.GET("/research/:id", h.getResearch)
		api.GET("/stats", h.getStats)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// getMovers returns recent mover events, largest magnitude first.
//
// Query params: hours (lookback window, default 24, max 168), direction
// ("up", "down", or empty for both), limit (default 50, max 200).
func (h *Handler) getMovers(c *gin.Context) {
	hours := clampedIntQuery(c, "hours", 24, 1, 168)
	limit := clampedIntQuery(c, "limit", 50, 1, 200)
	direction := c.Query("direction")
	if direction != "" && direction != "up" && direction != "down" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be 'up' or 'down'"})
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	movers, err := h.store.MoversSince(c.Request.Context(), since, direction, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load movers"})
		return
	}
	total, err := h.store.CountMoversSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count movers"})
		return
	}

	// Store order is recency; the API contract is biggest move first.
	sort.SliceStable(movers, func(i, j int) bool {
		return math.Abs(movers[i].Magnitude) > math.Abs(movers[j].Magnitude)
	})

	c.JSON(http.StatusOK, gin.H{
		"movers": movers,
		"total":  total,
		"params": gin.H{
			"hours":     hours,
			"direction": direction,
			"limit":     limit,
		},
		"timestamp": time.Now().UTC(),
	})
}

// getResearch returns the research report for a mover event ID.
func (h *Handler) getResearch(c *gin.Context) {
	eventID := c.Param("id")

	report, err := h.store.ResearchReportByEvent(c.Request.Context(), eventID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "research report not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load research report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// getStats returns aggregate counters for a lookback period in days
// (default 7, max 90).
func (h *Handler) getStats(c *gin.Context) {
	days := clampedIntQuery(c, "days", 7, 1, 90)

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)
	sinceDate := since.Format("2006-01-02")
	ctx := c.Request.Context()

	totalMovers, err := h.store.CountMoversSince(ctx, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	researchCount, err := h.store.CountResearchSince(ctx, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	counts, err := h.store.PredictionStatusCountsSince(ctx, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	daily, err := h.store.DailyStatsSince(ctx, sinceDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period": gin.H{"days": days, "since": sinceDate},
		"summary": gin.H{
			"totalMovers":        totalMovers,
			"researchReports":    researchCount,
			"predictionAccuracy": prediction.Accuracy(counts),
		},
		"predictions": counts,
		"dailyStats":  daily,
		"timestamp":   now,
	})
}

// clampedIntQuery reads an integer query param with a default and bounds.
// Unparseable values fall back to the default.
func clampedIntQuery(c *gin.Context, name string, def, min, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
