package child

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBMI(t *testing.T) {
	assert.InDelta(t, 15.0, CalculateBMI(15, 100), 1e-9)
	assert.InDelta(t, 20.0, CalculateBMI(20, 100), 1e-9)
	assert.InDelta(t, 12.5, CalculateBMI(8, 80), 1e-9)
	assert.True(t, math.IsInf(CalculateBMI(10, 0), 1))
}

func TestClassifyMalnutrition(t *testing.T) {
	tests := []struct {
		name string
		bmi  float64
		age  float64
		want Status
	}{
		{"infant just under severe", 13.99, 1.5, StatusSevere},
		{"infant at severe cut-off", 14.0, 1.5, StatusModerate},
		{"infant just under moderate", 15.99, 1.5, StatusModerate},
		{"infant at moderate cut-off", 16.0, 1.5, StatusNormal},
		{"child just under severe", 13.49, 3, StatusSevere},
		{"child at severe cut-off", 13.5, 3, StatusModerate},
		{"child just under moderate", 15.49, 3, StatusModerate},
		{"child at moderate cut-off", 15.5, 3, StatusNormal},
		{"age exactly two uses child bands", 15.0, 2, StatusModerate},
		{"same bmi under two is moderate", 15.0, 1.99, StatusModerate},
		{"13.8 at two is moderate", 13.8, 2, StatusModerate},
		{"13.8 under two is severe", 13.8, 1, StatusSevere},
		{"healthy", 17.2, 4, StatusNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMalnutrition(tt.bmi, tt.age))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Normal", StatusNormal.String())
	assert.Equal(t, "Moderate Acute Malnutrition", StatusModerate.String())
	assert.Equal(t, "Severe Acute Malnutrition", StatusSevere.String())
	assert.False(t, StatusNormal.Malnourished())
	assert.True(t, StatusSevere.Malnourished())
}

func TestRecordAssessment(t *testing.T) {
	r := &Record{Age: 3, WeightKg: 12, HeightCm: 100}
	bmi, status := r.Assessment()
	assert.InDelta(t, 12.0, bmi, 1e-9)
	assert.Equal(t, StatusSevere, status)
	assert.Equal(t, 12.0, RoundBMI(bmi))
	assert.Equal(t, 15.6, RoundBMI(15.63))
}
