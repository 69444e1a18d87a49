package risk

import "math"

// PlannedRisk is the cash lost if the stop is hit.
func PlannedRisk(qty int, entry, stop float64) float64 {
	return float64(qty) * math.Abs(entry-stop)
}

// RR is reward over risk. Zero when the stop sits on the entry.
func RR(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(target-entry) / risk
}

func RiskPct(plannedRisk, capital float64) float64 {
	if capital <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / capital
}
