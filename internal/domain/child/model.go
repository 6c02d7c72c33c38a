package child

import (
	"strings"
	"time"
)

// Language is the interface language the record was collected in.
type Language string

const (
	LangEnglish Language = "en"
	LangHindi   Language = "hi"
	LangTelugu  Language = "te"
	LangKannada Language = "kn"
)

func (l Language) Valid() bool {
	switch l {
	case LangEnglish, LangHindi, LangTelugu, LangKannada:
		return true
	}
	return false
}

// Location is where the observation was taken. Optional, and never changed
// once set.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Record is a single child health observation.
//
// ChildName, GuardianName and FacePhoto are plaintext in memory and in
// transit. Stores encrypt them at rest.
type Record struct {
	ID              string    `json:"id"`
	HealthID        string    `json:"healthId"`
	ChildName       string    `json:"childName"`
	FacePhoto       string    `json:"facePhoto"`
	Age             float64   `json:"age"`
	WeightKg        float64   `json:"childWeight"`
	HeightCm        float64   `json:"childHeight"`
	GuardianName    string    `json:"parentGuardianName"`
	VisibleSigns    string    `json:"visibleSignsMalnutrition"`
	RecentIllnesses string    `json:"recentIllnesses"`
	ParentalConsent bool      `json:"parentalConsent"`
	Location        *Location `json:"location,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	IsUploaded      bool      `json:"isUploaded"`
	OwnerID         string    `json:"representativeId"`
	Language        Language  `json:"language"`
}

// Assessment derives BMI and nutrition status from the recorded
// measurements.
func (r *Record) Assessment() (float64, Status) {
	bmi := CalculateBMI(r.WeightKg, r.HeightCm)
	return bmi, ClassifyMalnutrition(bmi, r.Age)
}

// UploadFilter selects records by upload state.
type UploadFilter string

const (
	FilterAll      UploadFilter = "all"
	FilterUploaded UploadFilter = "uploaded"
	FilterPending  UploadFilter = "pending"
)

// ListFilter narrows a record listing. Search matches child name, health id
// and guardian name case-insensitively.
type ListFilter struct {
	Search string
	Status UploadFilter
}

func (f ListFilter) matches(r *Record) bool {
	switch f.Status {
	case FilterUploaded:
		if !r.IsUploaded {
			return false
		}
	case FilterPending:
		if r.IsUploaded {
			return false
		}
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(r.ChildName), q) ||
		strings.Contains(strings.ToLower(r.HealthID), q) ||
		strings.Contains(strings.ToLower(r.GuardianName), q)
}
