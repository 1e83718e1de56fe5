package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/gleaner/models"
)

// RunSource provides a point-in-time view of the active run.
type RunSource interface {
	Snapshot() models.RunSnapshot
}

// GetRun returns a handler for GET /api/v1/run. It serves the full run
// snapshot including per-item progress.
func GetRun(src RunSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Snapshot())
	}
}

// GetItems returns a handler for GET /api/v1/run/items. An optional
// ?state= query narrows the list to items in that lifecycle state.
func GetItems(src RunSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := src.Snapshot()

		state := c.Query("state")
		if state == "" {
			c.JSON(http.StatusOK, snap.Items)
			return
		}

		filtered := make([]models.ItemProgress, 0, len(snap.Items))
		for _, item := range snap.Items {
			if string(item.State) == state {
				filtered = append(filtered, item)
			}
		}
		c.JSON(http.StatusOK, filtered)
	}
}
