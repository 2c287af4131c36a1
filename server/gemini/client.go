package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/san-kum/aquascan/server/config"
	"github.com/san-kum/aquascan/server/models"
	"github.com/san-kum/aquascan/server/risk"
	"go.uber.org/zap"
)

// ErrNotConfigured is carried by results produced without an API key.
var ErrNotConfigured = errors.New("gemini api key not configured")

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Result is the outcome of one analysis call. Exactly one of the success
// record or Err is meaningful; Assessment always yields a usable record.
type Result struct {
	assessment models.AIAssessment
	Err        error
}

func Succeeded(a models.AIAssessment) Result {
	return Result{assessment: a}
}

func Failed(err error) Result {
	return Result{Err: err}
}

// Degraded reports whether the assessment is a placeholder or error record.
func (r Result) Degraded() bool {
	return r.Err != nil
}

// Assessment returns the model's record, the demo placeholder when the
// client is unconfigured, or a zero-confidence error record.
func (r Result) Assessment() models.AIAssessment {
	switch {
	case r.Err == nil:
		return r.assessment
	case errors.Is(r.Err, ErrNotConfigured):
		return models.AIAssessment{
			RiskScore:      50,
			Confidence:     0,
			ReasoningShort: "Demo Mode (No API Key)",
			Details:        "Gemini API Key not configured. Returning mock analysis.",
			Tags:           []string{"demo", "mock"},
		}
	default:
		return models.AIAssessment{
			RiskScore:      0,
			Confidence:     0,
			ReasoningShort: "Analysis Error",
			Details:        fmt.Sprintf("AI Service Error: %s", r.Err.Error()),
			Tags:           []string{"error"},
		}
	}
}

// NewClient builds the vision model client. An empty API key yields an
// unconfigured client whose results are placeholders.
func NewClient(cfg config.GeminiConfig, logger *zap.Logger) *Client {
	client := &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}

	if client.Configured() {
		logger.Info("Gemini client configured", zap.String("model", client.model))
	} else {
		logger.Warn("Gemini client not configured, returning placeholder analyses")
	}

	return client
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Analyze sends the image with the fixed instruction prompt in a single
// attempt. It never returns a nil or zero Result on failure; check Err.
func (c *Client) Analyze(ctx context.Context, image []byte) Result {
	if !c.Configured() {
		return Failed(ErrNotConfigured)
	}

	start := time.Now()
	text, err := c.generateContent(ctx, image)
	if err != nil {
		c.logger.Error("Gemini analysis failed", zap.Error(err), zap.Duration("latency", time.Since(start)))
		return Failed(err)
	}

	assessment, err := ParseAssessment(text)
	if err != nil {
		c.logger.Error("Failed to parse Gemini reply", zap.Error(err), zap.Int("reply_len", len(text)))
		return Failed(err)
	}

	c.logger.Debug("Gemini analysis completed",
		zap.Float64("risk_score", assessment.RiskScore),
		zap.String("mode", assessment.ModeDetected),
		zap.Duration("latency", time.Since(start)))

	return Succeeded(assessment)
}

func (c *Client) generateContent(ctx context.Context, image []byte) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: analysisPrompt},
					{InlineData: &inlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
	}

	requestData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-goog-api-key", c.apiKey)

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed generateResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if response.StatusCode != http.StatusOK {
		// Error bodies are best effort; the status alone is reported otherwise.
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("gemini http %d: %s", response.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("gemini http %d", response.StatusCode)
	}

	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	for _, p := range parsed.Candidates[0].Content.Parts {
		if strings.TrimSpace(p.Text) != "" {
			return p.Text, nil
		}
	}

	return "", fmt.Errorf("no text part in response")
}

// ParseAssessment strips markdown code fences from a model reply and
// decodes it. Scores are clamped to [0, 100].
func ParseAssessment(text string) (models.AIAssessment, error) {
	var assessment models.AIAssessment

	cleaned := StripCodeFence(text)
	if err := json.Unmarshal([]byte(cleaned), &assessment); err != nil {
		return assessment, fmt.Errorf("failed to decode model reply: %w", err)
	}

	assessment.RiskScore = risk.Clamp(assessment.RiskScore)
	assessment.Confidence = risk.Clamp(assessment.Confidence)
	return assessment, nil
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
