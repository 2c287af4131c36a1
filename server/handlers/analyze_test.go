package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/aquascan/server/config"
	"github.com/san-kum/aquascan/server/gemini"
	"github.com/san-kum/aquascan/server/processor"
	"github.com/san-kum/aquascan/server/usgs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stationPayload = `{"value":{"timeSeries":[
  {"sourceInfo":{"siteName":"LAKE TRAVIS","siteCode":[{"value":"08154500"}]},
   "variable":{"variableName":"Temperature, water, &#176;C","unit":{"unitCode":"deg C"}},
   "values":[{"value":[{"value":"26.1"}]}]}
]}}`

func newTestAnalyzer(t *testing.T, usgsHandler http.HandlerFunc) *processor.Analyzer {
	t.Helper()
	srv := httptest.NewServer(usgsHandler)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	vision := gemini.NewClient(config.GeminiConfig{Model: "test-model", Timeout: time.Second}, logger)
	sensors := usgs.NewClient(config.USGSConfig{BaseURL: srv.URL, Timeout: time.Second, BoxWidth: 0.1}, logger)
	return processor.NewAnalyzer(vision, sensors, logger)
}

func newTestRouter(t *testing.T, usgsHandler http.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAnalyzeHandler(newTestAnalyzer(t, usgsHandler), zap.NewNop())

	router := gin.New()
	router.POST("/api/v1/analyze", h.Analyze)
	router.GET("/api/v1/stats", h.GetStats)
	router.GET("/health", h.Health)
	return router
}

func postJSON(router http.Handler, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func fullMetrics() map[string]any {
	return map[string]any{"turbidityScore": 80, "edgeDensity": 40, "labVariance": 1.5}
}

func jpegBase64() string {
	return base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0})
}

func TestAnalyzeReturnsEnvelope(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(stationPayload))
	})

	w := postJSON(router, map[string]any{
		"image_base64":    "data:image/jpeg;base64," + jpegBase64(),
		"optical_metrics": map[string]any{"turbidityScore": 80, "edgeDensity": 40, "labVariance": 3.2},
		"geo_lat":         30.39,
		"geo_lon":         -97.91,
		"embeddings":      []float64{0.1, 0.2},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, 57.0, resp["risk_score"])
	assert.Equal(t, "Medium", resp["risk_level"])

	analysis := resp["gemini_analysis"].(map[string]any)
	assert.Equal(t, "Demo Mode (No API Key)", analysis["reasoning"])
	assert.Equal(t, "Unknown", analysis["mode_detected"])

	external := resp["external_data"].(map[string]any)
	assert.Equal(t, "LAKE TRAVIS", external["station_name"])
	assert.Equal(t, "26.1 deg C", external["parameters"].(map[string]any)["Temperature"])

	algae := resp["algae_analysis"].(map[string]any)
	assert.Equal(t, 30.0, algae["risk_score"])
	assert.Equal(t, "Moderate", algae["risk_level"])

	breakdown := resp["technical_breakdown"].(map[string]any)
	assert.Equal(t, 24.0, breakdown["turbidity_contribution"])
	assert.Equal(t, 8.0, breakdown["edge_contribution"])
	assert.Equal(t, 25.0, breakdown["ai_expert_contribution"])
}

func TestAnalyzeSensorOutageReturnsNullExternalData(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	w := postJSON(router, map[string]any{
		"image_base64":    jpegBase64(),
		"optical_metrics": map[string]any{"turbidityScore": 10, "edgeDensity": 10, "labVariance": 0},
		"geo_lat":         30.39,
		"geo_lon":         -97.91,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	v, ok := resp["external_data"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestAnalyzeRejectsInvalidBodies(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("sensor lookup must not run for invalid requests")
	})

	tests := []struct {
		name string
		body any
	}{
		{"missing image", map[string]any{"optical_metrics": fullMetrics(), "geo_lat": 1, "geo_lon": 1}},
		{"missing metrics", map[string]any{"image_base64": jpegBase64(), "geo_lat": 1, "geo_lon": 1}},
		{"empty metrics", map[string]any{"image_base64": jpegBase64(), "optical_metrics": map[string]any{}, "geo_lat": 1, "geo_lon": 1}},
		{"partial metrics", map[string]any{"image_base64": jpegBase64(), "optical_metrics": map[string]any{"turbidityScore": 80}, "geo_lat": 1, "geo_lon": 1}},
		{"null metric", map[string]any{"image_base64": jpegBase64(), "optical_metrics": map[string]any{"turbidityScore": 80, "edgeDensity": nil, "labVariance": 1}}},
		{"wrong types", map[string]any{"image_base64": jpegBase64(), "optical_metrics": "high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAnalyzeUndecodableImageStillAnswers(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	w := postJSON(router, map[string]any{
		"image_base64":    "not*base64",
		"optical_metrics": fullMetrics(),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	analysis := resp["gemini_analysis"].(map[string]any)
	assert.Equal(t, "Demo Mode (No API Key)", analysis["reasoning"])
	assert.Equal(t, map[string]any{}, analysis["brand_analysis"])
	assert.Nil(t, analysis["visual_analysis"])
}

func TestStatsAndHealth(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	postJSON(router, map[string]any{
		"image_base64":    jpegBase64(),
		"optical_metrics": map[string]any{"turbidityScore": 0, "edgeDensity": 0, "labVariance": 0},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Analyzer processor.AnalyzerStats `json:"analyzer"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Analyzer.TotalAnalyses)
	assert.Equal(t, int64(1), stats.Analyzer.DegradedAnalyses)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"gemini_configured":false`)
}

func TestDecodeImage(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeImage(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeImage("data:image/jpeg;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeImage("data:image/jpeg;base64,")
	assert.ErrorIs(t, err, errEmptyImage)

	_, err = decodeImage("not base64!")
	assert.Error(t, err)
}
