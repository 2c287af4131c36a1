package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/aquascan/server/models"
	"github.com/san-kum/aquascan/server/processor"
	"go.uber.org/zap"
)

var errEmptyImage = errors.New("image payload is empty")

type AnalyzeHandler struct {
	analyzer *processor.Analyzer
	logger   *zap.Logger
}

func NewAnalyzeHandler(analyzer *processor.Analyzer, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer: analyzer,
		logger:   logger,
	}
}

// Analyze handles POST /api/v1/analyze.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var request models.AnalyzeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.Warn("Invalid request format", zap.Error(err), zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	scan := toScanRequest(&request, c.ClientIP())
	if scan.ImageErr != nil {
		h.logger.Warn("Undecodable image payload", zap.Error(scan.ImageErr), zap.String("client_ip", c.ClientIP()))
	}

	response := h.analyzer.Analyze(c.Request.Context(), scan)
	c.JSON(http.StatusOK, response)
}

// GetStats handles GET /api/v1/stats.
func (h *AnalyzeHandler) GetStats(c *gin.Context) {
	stats := h.analyzer.GetStats()

	var degradedRate float64
	if stats.TotalAnalyses > 0 {
		degradedRate = float64(stats.DegradedAnalyses) / float64(stats.TotalAnalyses) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"analyzer": stats,
		"metrics": gin.H{
			"degraded_rate":  degradedRate,
			"uptime_seconds": time.Since(stats.StartTime).Seconds(),
		},
	})
}

// Health reports liveness and whether AI analysis is live or placeholder.
func (h *AnalyzeHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"timestamp":         time.Now().Unix(),
		"service":           "aquascan-backend",
		"gemini_configured": h.analyzer.GeminiConfigured(),
	})
}

func toScanRequest(request *models.AnalyzeRequest, clientID string) *models.ScanRequest {
	scan := &models.ScanRequest{
		OpticalMetrics: request.OpticalMetrics.Metrics(),
		Embeddings:     request.Embeddings,
		ClientID:       clientID,
	}
	scan.ImageData, scan.ImageErr = decodeImage(request.ImageBase64)
	if request.GeoLat != nil {
		scan.Lat = *request.GeoLat
	}
	if request.GeoLon != nil {
		scan.Lon = *request.GeoLon
	}

	return scan
}

// decodeImage accepts raw base64 or a data URI ("data:image/jpeg;base64,...").
func decodeImage(payload string) ([]byte, error) {
	if i := strings.Index(payload, "base64,"); i >= 0 {
		payload = payload[i+len("base64,"):]
	}
	payload = strings.TrimSpace(payload)

	imageData, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	if len(imageData) == 0 {
		return nil, errEmptyImage
	}

	return imageData, nil
}
