package scoring

import "fmt"

// SectionPerformance pairs a section's display name with the percentage of
// its maximum score the user achieved.
type SectionPerformance struct {
	DisplayName string
	Percentage  float64
}

// Narrative turns per-section percentages into the strengths/weaknesses lines
// shown on the results page. Thresholds: >=80 excellent, >=60 good, <40 needs
// practice, <60 room for improvement.
func Narrative(sections []SectionPerformance) (strengths, weaknesses []string) {
	for _, s := range sections {
		switch {
		case s.Percentage >= 80:
			strengths = append(strengths, fmt.Sprintf("Excellent performance in %s", s.DisplayName))
		case s.Percentage >= 60:
			strengths = append(strengths, fmt.Sprintf("Good understanding of %s", s.DisplayName))
		case s.Percentage < 40:
			weaknesses = append(weaknesses, fmt.Sprintf("Need more practice in %s", s.DisplayName))
		default:
			weaknesses = append(weaknesses, fmt.Sprintf("Room for improvement in %s", s.DisplayName))
		}
	}
	return strengths, weaknesses
}
