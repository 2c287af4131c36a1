package processor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/san-kum/aquascan/server/gemini"
	"github.com/san-kum/aquascan/server/metrics"
	"github.com/san-kum/aquascan/server/models"
	"github.com/san-kum/aquascan/server/risk"
	"github.com/san-kum/aquascan/server/usgs"
	"go.uber.org/zap"
)

// VisionModel produces the AI assessment for an image.
type VisionModel interface {
	Analyze(ctx context.Context, image []byte) gemini.Result
	Configured() bool
}

// SensorSource looks up nearby station readings.
type SensorSource interface {
	Fetch(ctx context.Context, lat, lon float64) usgs.Lookup
}

type Analyzer struct {
	vision  VisionModel
	sensors SensorSource
	logger  *zap.Logger
	stats   analyzerCounters
}

type analyzerCounters struct {
	startTime    time.Time
	total        atomic.Int64
	degraded     atomic.Int64
	sensorHits   atomic.Int64
	latencyNanos atomic.Int64
}

type AnalyzerStats struct {
	StartTime        time.Time `json:"start_time"`
	TotalAnalyses    int64     `json:"total_analyses"`
	DegradedAnalyses int64     `json:"degraded_analyses"`
	SensorHits       int64     `json:"sensor_hits"`
	AverageLatency   float64   `json:"average_latency_ms"`
	GeminiConfigured bool      `json:"gemini_configured"`
}

func NewAnalyzer(vision VisionModel, sensors SensorSource, logger *zap.Logger) *Analyzer {
	a := &Analyzer{
		vision:  vision,
		sensors: sensors,
		logger:  logger,
	}
	a.stats.startTime = time.Now()
	return a
}

// Analyze runs the sensor lookup concurrently with the AI call and
// synthesizes the response envelope. It always returns a complete envelope.
func (a *Analyzer) Analyze(ctx context.Context, req *models.ScanRequest) *models.AnalyzeResponse {
	start := time.Now()

	var sensorCh chan usgs.Lookup
	if req.Lat != 0 && req.Lon != 0 {
		sensorCh = make(chan usgs.Lookup, 1)
		go func() {
			sensorCh <- a.sensors.Fetch(ctx, req.Lat, req.Lon)
		}()
	} else {
		metrics.USGSLookupsTotal.WithLabelValues("skipped").Inc()
	}

	aiResult := a.assess(ctx, req)
	a.recordGemini(aiResult)
	assessment := aiResult.Assessment()

	var reading *models.SensorReading
	if sensorCh != nil {
		lookup := <-sensorCh
		a.recordSensor(lookup)
		reading = lookup.Reading
	}

	synthesized := risk.Synthesize(req.OpticalMetrics, assessment)
	algae := risk.AssessAlgae(reading, assessment)

	elapsed := time.Since(start)
	a.stats.total.Add(1)
	a.stats.latencyNanos.Add(int64(elapsed))
	metrics.AnalysisDurationSeconds.Observe(elapsed.Seconds())

	result := "ok"
	if aiResult.Degraded() {
		result = "degraded"
		a.stats.degraded.Add(1)
	}
	metrics.AnalysesTotal.WithLabelValues(result).Inc()

	a.logger.Info("Scan analyzed",
		zap.String("client_ip", req.ClientID),
		zap.Int("risk_score", synthesized.Score),
		zap.String("risk_level", synthesized.Level),
		zap.String("algae_level", algae.RiskLevel),
		zap.Bool("ai_degraded", aiResult.Degraded()),
		zap.Bool("sensor_data", reading != nil),
		zap.Duration("latency", elapsed))

	return &models.AnalyzeResponse{
		Status:             "success",
		RiskScore:          synthesized.Score,
		RiskLevel:          synthesized.Level,
		GeminiAnalysis:     models.NewGeminiAnalysis(assessment),
		ExternalData:       reading,
		AlgaeAnalysis:      algae,
		TechnicalBreakdown: synthesized.Breakdown,
	}
}

// assess runs the vision model. An undecodable image never reaches the
// model: it yields the placeholder when unconfigured, else the error record.
func (a *Analyzer) assess(ctx context.Context, req *models.ScanRequest) gemini.Result {
	if req.ImageErr == nil {
		return a.vision.Analyze(ctx, req.ImageData)
	}
	if !a.vision.Configured() {
		return gemini.Failed(gemini.ErrNotConfigured)
	}
	return gemini.Failed(fmt.Errorf("invalid image data: %w", req.ImageErr))
}

func (a *Analyzer) recordGemini(r gemini.Result) {
	switch {
	case r.Err == nil:
		metrics.GeminiRequestsTotal.WithLabelValues("ok").Inc()
	case errors.Is(r.Err, gemini.ErrNotConfigured):
		metrics.GeminiRequestsTotal.WithLabelValues("unconfigured").Inc()
	default:
		metrics.GeminiRequestsTotal.WithLabelValues("error").Inc()
	}
}

func (a *Analyzer) recordSensor(l usgs.Lookup) {
	switch {
	case l.Found():
		a.stats.sensorHits.Add(1)
		metrics.USGSLookupsTotal.WithLabelValues("found").Inc()
	case l.Err != nil:
		metrics.USGSLookupsTotal.WithLabelValues("error").Inc()
	default:
		metrics.USGSLookupsTotal.WithLabelValues("empty").Inc()
	}
}

func (a *Analyzer) GeminiConfigured() bool {
	return a.vision.Configured()
}

func (a *Analyzer) GetStats() *AnalyzerStats {
	total := a.stats.total.Load()

	var avg float64
	if total > 0 {
		avg = float64(a.stats.latencyNanos.Load()) / float64(total) / float64(time.Millisecond)
	}

	return &AnalyzerStats{
		StartTime:        a.stats.startTime,
		TotalAnalyses:    total,
		DegradedAnalyses: a.stats.degraded.Load(),
		SensorHits:       a.stats.sensorHits.Load(),
		AverageLatency:   avg,
		GeminiConfigured: a.vision.Configured(),
	}
}
