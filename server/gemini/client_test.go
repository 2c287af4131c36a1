package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/aquascan/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleReply = `{
  "risk_score": 72,
  "confidence": 85,
  "mode_detected": "Environmental Water",
  "severity_level": "High",
  "brand_analysis": {"detected": false, "brand_name": "Unknown", "reputation": "Unknown", "recall_info": ""},
  "reasoning_short": "Algal bloom with green scum",
  "visual_analysis": "Murky green water with surface foam",
  "score_breakdown": [{"factor": "Visual Clarity (Turbidity)", "score": 70, "contribution": "Suspended solids assessment"}],
  "potential_harms": ["Toxic algal byproducts"],
  "recommendations": ["Avoid direct contact"],
  "details": "High turbidity often correlates with bacterial load.",
  "tags": ["algae", "lake"]
}`

func geminiServer(t *testing.T, status int, text string) (*httptest.Server, chan []byte) {
	t.Helper()
	captured := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		select {
		case captured <- body:
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(baseURL, key string) *Client {
	return NewClient(config.GeminiConfig{
		APIKey:  key,
		Model:   "test-model",
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}, zap.NewNop())
}

func TestAnalyzeUnconfiguredReturnsPlaceholder(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", "")
	require.False(t, client.Configured())

	result := client.Analyze(context.Background(), []byte("img"))
	require.ErrorIs(t, result.Err, ErrNotConfigured)
	assert.True(t, result.Degraded())

	a := result.Assessment()
	assert.Equal(t, 50.0, a.RiskScore)
	assert.Equal(t, 0.0, a.Confidence)
	assert.Equal(t, "Demo Mode (No API Key)", a.ReasoningShort)
	assert.Equal(t, []string{"demo", "mock"}, a.Tags)
}

func TestAnalyzeParsesFencedReply(t *testing.T) {
	srv, captured := geminiServer(t, http.StatusOK, "```json\n"+sampleReply+"\n```")
	client := newTestClient(srv.URL, "test-key")

	result := client.Analyze(context.Background(), []byte{0xff, 0xd8, 0xff})
	require.NoError(t, result.Err)
	assert.False(t, result.Degraded())

	a := result.Assessment()
	assert.Equal(t, 72.0, a.RiskScore)
	assert.Equal(t, 85.0, a.Confidence)
	assert.Equal(t, "Environmental Water", a.ModeDetected)
	require.NotNil(t, a.BrandAnalysis)
	assert.Equal(t, "Unknown", a.BrandAnalysis.BrandName)
	assert.Len(t, a.ScoreBreakdown, 1)
	assert.Equal(t, []string{"algae", "lake"}, a.Tags)

	var sent generateRequest
	require.NoError(t, json.Unmarshal(<-captured, &sent))
	require.Len(t, sent.Contents, 1)
	require.Len(t, sent.Contents[0].Parts, 2)
	assert.Contains(t, sent.Contents[0].Parts[0].Text, "OUTPUT FORMAT (JSON ONLY)")
	assert.Equal(t, "image/jpeg", sent.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, "/9j/", sent.Contents[0].Parts[1].InlineData.Data)
}

func TestAnalyzeServiceErrorBecomesErrorRecord(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusTooManyRequests, "")
	client := newTestClient(srv.URL, "test-key")

	result := client.Analyze(context.Background(), []byte("img"))
	require.Error(t, result.Err)

	a := result.Assessment()
	assert.Equal(t, 0.0, a.RiskScore)
	assert.Equal(t, 0.0, a.Confidence)
	assert.Equal(t, "Analysis Error", a.ReasoningShort)
	assert.True(t, strings.HasPrefix(a.Details, "AI Service Error: "))
	assert.Contains(t, a.Details, "quota exceeded")
	assert.Equal(t, []string{"error"}, a.Tags)
}

func TestAnalyzeMalformedReplyBecomesErrorRecord(t *testing.T) {
	srv, _ := geminiServer(t, http.StatusOK, "Sorry, I cannot help with that.")
	client := newTestClient(srv.URL, "test-key")

	result := client.Analyze(context.Background(), []byte("img"))
	require.Error(t, result.Err)
	assert.Equal(t, "Analysis Error", result.Assessment().ReasoningShort)
}

func TestAnalyzeNonJSONBodyReportsDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>upstream proxy error</html>"))
	}))
	t.Cleanup(srv.Close)

	result := newTestClient(srv.URL, "test-key").Analyze(context.Background(), []byte("img"))
	require.Error(t, result.Err)
	assert.Contains(t, result.Assessment().Details, "failed to decode response")
	assert.NotContains(t, result.Assessment().Details, "no candidates")
}

func TestAnalyzeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := newTestClient(url, "test-key").Analyze(context.Background(), []byte("img"))
	require.Error(t, result.Err)
	assert.Contains(t, result.Assessment().Details, "HTTP request failed")
}

func TestParseAssessmentClampsScores(t *testing.T) {
	a, err := ParseAssessment(`{"risk_score": 140, "confidence": -5}`)
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.RiskScore)
	assert.Equal(t, 0.0, a.Confidence)
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"{\"a\":1}":                 "{\"a\":1}",
		"```json\n{\"a\":1}\n```":   "{\"a\":1}",
		"```\n{\"a\":1}\n```\n":     "{\"a\":1}",
		"  ```JSON\n{\"a\":1}```  ": "{\"a\":1}",
		"```json {\"a\":1} ```":     "{\"a\":1}",
	}

	for in, want := range tests {
		assert.Equal(t, want, StripCodeFence(in), "input %q", in)
	}
}
