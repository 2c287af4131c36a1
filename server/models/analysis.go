package models

// OpticalMetrics are image statistics computed on the client before upload.
type OpticalMetrics struct {
	TurbidityScore float64 `json:"turbidityScore"`
	EdgeDensity    float64 `json:"edgeDensity"`
	LabVariance    float64 `json:"labVariance"`
}

// MetricsInput is the wire form of OpticalMetrics. Every field must be
// present; zero is a valid value.
type MetricsInput struct {
	TurbidityScore *float64 `json:"turbidityScore" binding:"required"`
	EdgeDensity    *float64 `json:"edgeDensity" binding:"required"`
	LabVariance    *float64 `json:"labVariance" binding:"required"`
}

func (m *MetricsInput) Metrics() OpticalMetrics {
	return OpticalMetrics{
		TurbidityScore: *m.TurbidityScore,
		EdgeDensity:    *m.EdgeDensity,
		LabVariance:    *m.LabVariance,
	}
}

// AnalyzeRequest is the inbound JSON body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	ImageBase64    string        `json:"image_base64" binding:"required"`
	OpticalMetrics *MetricsInput `json:"optical_metrics" binding:"required"`
	GeoLat         *float64      `json:"geo_lat"`
	GeoLon         *float64      `json:"geo_lon"`
	Embeddings     []float64     `json:"embeddings"`
}

// ScanRequest is an AnalyzeRequest after the image payload was decoded.
// ImageErr holds the decode failure, if any; it degrades the AI
// assessment instead of rejecting the request.
type ScanRequest struct {
	ImageData      []byte
	ImageErr       error
	OpticalMetrics OpticalMetrics
	Lat            float64
	Lon            float64
	Embeddings     []float64
	ClientID       string
}

type BrandAnalysis struct {
	Detected   bool   `json:"detected"`
	BrandName  string `json:"brand_name"`
	Reputation string `json:"reputation"`
	RecallInfo string `json:"recall_info"`
}

type ScoreFactor struct {
	Factor       string  `json:"factor"`
	Score        float64 `json:"score"`
	Contribution string  `json:"contribution"`
}

// AIAssessment is the structured record returned by the vision model.
type AIAssessment struct {
	RiskScore       float64        `json:"risk_score"`
	Confidence      float64        `json:"confidence"`
	ModeDetected    string         `json:"mode_detected,omitempty"`
	SeverityLevel   string         `json:"severity_level,omitempty"`
	BrandAnalysis   *BrandAnalysis `json:"brand_analysis,omitempty"`
	ReasoningShort  string         `json:"reasoning_short"`
	VisualAnalysis  string         `json:"visual_analysis,omitempty"`
	ScoreBreakdown  []ScoreFactor  `json:"score_breakdown,omitempty"`
	PotentialHarms  []string       `json:"potential_harms,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Details         string         `json:"details"`
	Tags            []string       `json:"tags"`
}

// SensorReading holds the latest values of a nearby monitoring station.
// Parameters maps a variable name to "<value> <unit>".
type SensorReading struct {
	Source      string            `json:"source"`
	StationName string            `json:"station_name"`
	StationID   string            `json:"station_id"`
	Parameters  map[string]string `json:"parameters"`
}

type RiskBreakdown struct {
	TurbidityContribution int `json:"turbidity_contribution"`
	EdgeContribution      int `json:"edge_contribution"`
	AIExpertContribution  int `json:"ai_expert_contribution"`
}

type RiskAssessment struct {
	Score     int           `json:"score"`
	Level     string        `json:"level"`
	Breakdown RiskBreakdown `json:"breakdown"`
}

type AlgaeAssessment struct {
	RiskScore int      `json:"risk_score"`
	RiskLevel string   `json:"risk_level"`
	Drivers   []string `json:"drivers"`
	Action    string   `json:"action"`
	Details   string   `json:"details"`
}

// GeminiAnalysis is the projection of an AIAssessment sent back to callers.
// Empty free-text fields are null; a missing brand record is {}.
type GeminiAnalysis struct {
	ModeDetected    string        `json:"mode_detected"`
	SeverityLevel   string        `json:"severity_level"`
	BrandAnalysis   any           `json:"brand_analysis"`
	Reasoning       *string       `json:"reasoning"`
	VisualAnalysis  *string       `json:"visual_analysis"`
	ScoreBreakdown  []ScoreFactor `json:"score_breakdown"`
	PotentialHarms  []string      `json:"potential_harms"`
	Recommendations []string      `json:"recommendations"`
	Details         *string       `json:"details"`
	Tags            []string      `json:"tags"`
}

type AnalyzeResponse struct {
	Status             string          `json:"status"`
	RiskScore          int             `json:"risk_score"`
	RiskLevel          string          `json:"risk_level"`
	GeminiAnalysis     GeminiAnalysis  `json:"gemini_analysis"`
	ExternalData       *SensorReading  `json:"external_data"`
	AlgaeAnalysis      AlgaeAssessment `json:"algae_analysis"`
	TechnicalBreakdown RiskBreakdown   `json:"technical_breakdown"`
}

// NewGeminiAnalysis projects an assessment into the response shape,
// defaulting unknown labels and empty lists.
func NewGeminiAnalysis(a AIAssessment) GeminiAnalysis {
	out := GeminiAnalysis{
		ModeDetected:    a.ModeDetected,
		SeverityLevel:   a.SeverityLevel,
		BrandAnalysis:   struct{}{},
		Reasoning:       optional(a.ReasoningShort),
		VisualAnalysis:  optional(a.VisualAnalysis),
		ScoreBreakdown:  a.ScoreBreakdown,
		PotentialHarms:  a.PotentialHarms,
		Recommendations: a.Recommendations,
		Details:         optional(a.Details),
		Tags:            a.Tags,
	}
	if out.ModeDetected == "" {
		out.ModeDetected = "Unknown"
	}
	if out.SeverityLevel == "" {
		out.SeverityLevel = "Unknown"
	}
	if a.BrandAnalysis != nil {
		out.BrandAnalysis = a.BrandAnalysis
	}
	if out.ScoreBreakdown == nil {
		out.ScoreBreakdown = []ScoreFactor{}
	}
	if out.PotentialHarms == nil {
		out.PotentialHarms = []string{}
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
