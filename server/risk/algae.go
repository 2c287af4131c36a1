package risk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/aquascan/server/models"
)

const (
	AlgaeLow      = "Low"
	AlgaeModerate = "Moderate"
	AlgaeHigh     = "High"
	AlgaeCritical = "Critical"
)

var (
	highRiskKeywords     = []string{"algae", "algal", "green scum", "cyanobacteria", "blue-green"}
	moderateRiskKeywords = []string{"green water", "turbid green", "vegetation", "moss"}
)

var algaeActions = map[string]string{
	AlgaeLow:      "Conditions are unlikely to support a bloom currently.",
	AlgaeModerate: "Monitor for changes in water color or smell.",
	AlgaeHigh:     "Conditions favorable for HABs. Avoid contact if scum is visible.",
	AlgaeCritical: "DO NOT ENTER WATER. High likelihood of toxic cyanobacteria.",
}

// AssessAlgae scores harmful algal bloom likelihood from station readings
// (may be nil) and the AI's visual description.
func AssessAlgae(reading *models.SensorReading, ai models.AIAssessment) models.AlgaeAssessment {
	score := 0
	drivers := []string{}

	if reading != nil && reading.Parameters != nil {
		params := reading.Parameters

		temp := params["Temperature, water,"]
		if temp == "" {
			temp = params["Temperature"]
		}
		if v, ok := leadingFloat(temp); ok {
			if v > 25 {
				score += 30
				drivers = append(drivers, fmt.Sprintf("High Water Temp (%s°C)", formatFloat(v)))
			} else if v > 20 {
				score += 15
				drivers = append(drivers, fmt.Sprintf("Warm Water (%s°C)", formatFloat(v)))
			}
		}

		if v, ok := leadingFloat(params["pH"]); ok {
			if v > 9.0 {
				score += 25
				drivers = append(drivers, fmt.Sprintf("Very High pH (%s)", formatFloat(v)))
			} else if v > 8.5 {
				score += 15
				drivers = append(drivers, fmt.Sprintf("Elevated pH (%s)", formatFloat(v)))
			}
		}

		// The >10 tier intentionally records no driver.
		if v, ok := leadingFloat(params["Turbidity"]); ok {
			if v > 50 {
				score += 20
				drivers = append(drivers, "High Turbidity")
			} else if v > 10 {
				score += 10
			}
		}
	}

	visual := strings.ToLower(ai.VisualAnalysis + " " + ai.ReasoningShort)
	if containsAny(visual, highRiskKeywords) {
		score += 50
		drivers = append(drivers, "Visual Detection (Scum/Algae)")
	} else if containsAny(visual, moderateRiskKeywords) {
		score += 30
		drivers = append(drivers, "Visual Detection (Green Coloration)")
	}

	level := AlgaeLevel(score)
	if score > 100 {
		score = 100
	}

	return models.AlgaeAssessment{
		RiskScore: score,
		RiskLevel: level,
		Drivers:   drivers,
		Action:    algaeActions[level],
		Details:   fmt.Sprintf("Combined analysis of %d risk factors.", len(drivers)),
	}
}

func AlgaeLevel(score int) string {
	switch {
	case score >= 60:
		return AlgaeCritical
	case score >= 40:
		return AlgaeHigh
	case score >= 20:
		return AlgaeModerate
	default:
		return AlgaeLow
	}
}

// leadingFloat parses the first whitespace separated token of a
// "<value> <unit>" string.
func leadingFloat(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
