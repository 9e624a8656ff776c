package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/services"
)

type StatusLister interface {
	Statuses() []services.StreamerStatus
}

type HistoryReader interface {
	History(ctx context.Context, streamerID string) (*domain.StreamerHistory, error)
}

type StreamerController struct {
	tracker StatusLister
	history HistoryReader
}

func NewStreamerController(tracker StatusLister, history HistoryReader) *StreamerController {
	return &StreamerController{tracker: tracker, history: history}
}

func (c *StreamerController) RegisterStreamerRoutes(rg *gin.RouterGroup) {
	rg.GET("/streamers", c.handleListStreamers)
	rg.GET("/streamers/:id/history", c.handleGetHistory)
}

func (c *StreamerController) handleListStreamers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.tracker.Statuses())
}

// handleGetHistory serves the stored document, or a single day bucket when
// ?date=YYYY-MM-DD is given.
func (c *StreamerController) handleGetHistory(ctx *gin.Context) {
	id := ctx.Param("id")
	date := ctx.Query("date")
	if date != "" {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()
	h, err := c.history.History(reqCtx, id)
	if errors.Is(err, domain.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no history for streamer"})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if date == "" {
		ctx.JSON(http.StatusOK, h)
		return
	}
	day := h.Day(date)
	if day == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no streams on date"})
		return
	}
	ctx.JSON(http.StatusOK, day)
}
