package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/distillery"
	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/labeler"
)

// handler serves the status endpoints.
type handler struct {
	pipeline *distillery.Client
}

func newHandler(pipeline *distillery.Client) *handler {
	return &handler{pipeline: pipeline}
}

// Health handles GET /health
func (h *handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status handles GET /api/v1/status
func (h *handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Status())
}

// NextStage handles GET /api/v1/stages/next
func (h *handler) NextStage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"next_stage": h.pipeline.NextStage()})
}

// Artifacts handles GET /api/v1/artifacts
func (h *handler) Artifacts(c *gin.Context) {
	status := h.pipeline.Status()
	c.JSON(http.StatusOK, gin.H{
		"working_dir": status.WorkingDir,
		"artifacts":   status.Artifacts,
		"checkpoint":  status.Checkpoint,
	})
}

// labelStatsResponse summarizes the persisted label file.
type labelStatsResponse struct {
	Rows         int     `json:"rows"`
	MeanMargin   float64 `json:"mean_margin"`
	MinMargin    float64 `json:"min_margin"`
	MaxMargin    float64 `json:"max_margin"`
	UniqueQueries int     `json:"unique_queries"`
}

// LabelStats handles GET /api/v1/labels/stats
func (h *handler) LabelStats(c *gin.Context) {
	store := h.pipeline.Store()
	if !store.Exists(artifact.TrainingDataFile) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no training data artifact"})
		return
	}

	path, err := store.Path(artifact.TrainingDataFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	labels, err := labeler.Load(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := labelStatsResponse{Rows: len(labels)}
	queries := make(map[string]bool)
	var sum float64
	for i, row := range labels {
		margin := row.Margin()
		sum += margin
		if i == 0 || margin < resp.MinMargin {
			resp.MinMargin = margin
		}
		if i == 0 || margin > resp.MaxMargin {
			resp.MaxMargin = margin
		}
		queries[row.QueryID] = true
	}
	resp.MeanMargin = sum / float64(len(labels))
	resp.UniqueQueries = len(queries)

	c.JSON(http.StatusOK, resp)
}
