// Package risk turns optical metrics, the AI assessment and station readings
// into the scores returned to scanning clients.
package risk

import "github.com/san-kum/aquascan/server/models"

const (
	turbidityWeight = 0.30
	edgeWeight      = 0.20
	aiWeight        = 0.50
)

const (
	LevelLow       = "Low"
	LevelMedium    = "Medium"
	LevelPotential = "Potential Risk"
)

// Synthesize combines the client optical metrics with the AI risk score
// using fixed weights. Contributions are truncated independently, so the
// breakdown may not sum exactly to Score.
func Synthesize(metrics models.OpticalMetrics, ai models.AIAssessment) models.RiskAssessment {
	turbidity := Clamp(metrics.TurbidityScore)
	edge := Clamp(metrics.EdgeDensity)
	aiScore := Clamp(ai.RiskScore)

	score := turbidity*turbidityWeight + edge*edgeWeight + aiScore*aiWeight

	return models.RiskAssessment{
		Score: int(score),
		Level: Level(score),
		Breakdown: models.RiskBreakdown{
			TurbidityContribution: int(turbidity * turbidityWeight),
			EdgeContribution:      int(edge * edgeWeight),
			AIExpertContribution:  int(aiScore * aiWeight),
		},
	}
}

func Level(score float64) string {
	switch {
	case score < 30:
		return LevelLow
	case score < 60:
		return LevelMedium
	default:
		return LevelPotential
	}
}

// Clamp bounds v to [0, 100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
