package collector

import (
	"math"
	"time"

	"github.com/childhealth/fieldsync/internal/domain/child"
)

// StoredRecord is a child record as the server holds it, with upload
// bookkeeping alongside.
type StoredRecord struct {
	child.Record
	UploadedAt  time.Time `json:"uploadedAt"`
	ReceivedBy  string    `json:"receivedBy,omitempty"`
	UploadCount int       `json:"uploadCount"`
}

type RepresentativeCount struct {
	RepresentativeID string `json:"representativeId"`
	Count            int    `json:"count"`
}

// Statistics backs the admin dashboard. Everything the server holds has
// been uploaded, so PendingRecords is always zero here; devices report
// their own pending counts.
type Statistics struct {
	TotalRecords          int                   `json:"totalRecords"`
	UploadedRecords       int                   `json:"uploadedRecords"`
	PendingRecords        int                   `json:"pendingRecords"`
	MalnutritionCases     int                   `json:"malnutritionCases"`
	NormalCases           int                   `json:"normalCases"`
	ModerateCases         int                   `json:"moderateCases"`
	SevereCases           int                   `json:"severeCases"`
	ActiveRepresentatives int                   `json:"activeRepresentatives"`
	Representatives       []RepresentativeCount `json:"representatives"`
}

// Booklet is the printable health summary for one child.
type Booklet struct {
	HealthID        string          `json:"healthId"`
	ChildName       string          `json:"childName"`
	GuardianName    string          `json:"parentGuardianName"`
	Age             float64         `json:"age"`
	WeightKg        float64         `json:"childWeight"`
	HeightCm        float64         `json:"childHeight"`
	BMI             float64         `json:"bmi"`
	NutritionStatus string          `json:"nutritionStatus"`
	VisibleSigns    string          `json:"visibleSignsMalnutrition"`
	RecentIllnesses string          `json:"recentIllnesses"`
	Location        *child.Location `json:"location,omitempty"`
	RecordedAt      time.Time       `json:"recordedAt"`
	GeneratedAt     time.Time       `json:"generatedAt"`
	DownloadURL     string          `json:"downloadUrl"`
}

func newBooklet(r *StoredRecord, now time.Time) *Booklet {
	bmi, status := r.Assessment()
	if math.IsInf(bmi, 0) || math.IsNaN(bmi) {
		// no usable height; JSON cannot carry Inf
		bmi = 0
	}
	return &Booklet{
		HealthID:        r.HealthID,
		ChildName:       r.ChildName,
		GuardianName:    r.GuardianName,
		Age:             r.Age,
		WeightKg:        r.WeightKg,
		HeightCm:        r.HeightCm,
		BMI:             child.RoundBMI(bmi),
		NutritionStatus: status.String(),
		VisibleSigns:    r.VisibleSigns,
		RecentIllnesses: r.RecentIllnesses,
		Location:        r.Location,
		RecordedAt:      r.CreatedAt,
		GeneratedAt:     now,
		DownloadURL:     "/api/health-booklet/" + r.HealthID + "/download",
	}
}
