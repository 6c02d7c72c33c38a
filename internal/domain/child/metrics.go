package child

import "math"

// Status is the malnutrition classification of a child.
type Status int

const (
	StatusNormal Status = iota
	StatusModerate
	StatusSevere
)

func (s Status) String() string {
	switch s {
	case StatusModerate:
		return "Moderate Acute Malnutrition"
	case StatusSevere:
		return "Severe Acute Malnutrition"
	default:
		return "Normal"
	}
}

// Malnourished reports whether the status is moderate or severe.
func (s Status) Malnourished() bool {
	return s != StatusNormal
}

// Cut-offs in kg/m². Children under two use the higher pair.
const (
	infantAgeYears = 2

	infantSevereBMI   = 14.0
	infantModerateBMI = 16.0
	childSevereBMI    = 13.5
	childModerateBMI  = 15.5
)

// CalculateBMI returns weight / (height in metres)². A zero height yields
// +Inf; measurement validation belongs to the collection flow.
func CalculateBMI(weightKg, heightCm float64) float64 {
	m := heightCm / 100
	return weightKg / (m * m)
}

// RoundBMI rounds to one decimal place for display.
func RoundBMI(bmi float64) float64 {
	return math.Round(bmi*10) / 10
}

// ClassifyMalnutrition maps a BMI and an age in years to a Status. Each
// bound is exclusive: a BMI equal to a cut-off falls in the better band.
func ClassifyMalnutrition(bmi, ageYears float64) Status {
	severe, moderate := childSevereBMI, childModerateBMI
	if ageYears < infantAgeYears {
		severe, moderate = infantSevereBMI, infantModerateBMI
	}
	switch {
	case bmi < severe:
		return StatusSevere
	case bmi < moderate:
		return StatusModerate
	default:
		return StatusNormal
	}
}
