package discovery

import "slices"

const (
	StrengthExceptional = "Exceptional"
	StrengthHigh        = "High"
	StrengthModerate    = "Moderate"
	StrengthLow         = "Low"
)

// StrengthReport predicts how a relationship built on a match may develop.
type StrengthReport struct {
	Strength        string   `json:"strength"`
	Factors         []string `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

var categoryFactors = []struct {
	category string
	factor   string
}{
	{category: "Values", factor: "Shared core values and beliefs"},
	{category: "Future", factor: "Aligned life goals and timeline"},
	{category: "Relationship", factor: "Compatible relationship styles"},
}

// Strength derives a StrengthReport from a match result.
func Strength(r MatchResult) StrengthReport {
	var report StrengthReport

	switch {
	case r.Score >= 90:
		report.Strength = StrengthExceptional
		report.Factors = append(report.Factors, "Outstanding overall compatibility")
	case r.Score >= 80:
		report.Strength = StrengthHigh
		report.Factors = append(report.Factors, "Strong compatibility across multiple areas")
	case r.Score >= 70:
		report.Strength = StrengthModerate
		report.Factors = append(report.Factors, "Good foundation with some areas for growth")
	default:
		report.Strength = StrengthLow
		report.Factors = append(report.Factors, "Limited compatibility, significant differences")
	}

	for _, cf := range categoryFactors {
		if slices.Contains(r.StrongCategories, cf.category) {
			report.Factors = append(report.Factors, cf.factor)
		}
	}

	if len(r.Concerns) == 0 {
		report.Recommendations = append(report.Recommendations, "Excellent match - proceed with confidence")
	} else {
		report.Recommendations = append(report.Recommendations, "Discuss "+r.Concerns[0]+" early in relationship")
	}

	if report.Strength == StrengthExceptional || report.Strength == StrengthHigh {
		report.Recommendations = append(report.Recommendations,
			"Consider meeting in person soon",
			"Focus on building emotional connection",
		)
	} else {
		report.Recommendations = append(report.Recommendations,
			"Take time to understand differences",
			"Focus on building friendship first",
		)
	}

	return report
}
