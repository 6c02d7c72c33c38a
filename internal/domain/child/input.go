package child

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError lists the collection form fields that failed validation,
// keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range fieldOrder {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

var fieldOrder = []string{
	"childName", "facePhoto", "age", "childWeight", "childHeight",
	"parentGuardianName", "parentalConsent", "language",
}

// CollectInput is what a field representative enters for one child.
type CollectInput struct {
	ChildName       string
	FacePhoto       string
	Age             float64
	WeightKg        float64
	HeightCm        float64
	GuardianName    string
	VisibleSigns    string
	RecentIllnesses string
	ParentalConsent bool
	Location        *Location
	Language        Language
}

// Validate checks the input against the collection form rules.
func (in *CollectInput) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.ChildName) == "" {
		fields["childName"] = "required"
	}
	if in.FacePhoto == "" {
		fields["facePhoto"] = "required"
	}
	if in.Age <= 0 {
		fields["age"] = "must be greater than zero"
	}
	if in.WeightKg <= 0 {
		fields["childWeight"] = "must be greater than zero"
	}
	if in.HeightCm <= 0 {
		fields["childHeight"] = "must be greater than zero"
	}
	if strings.TrimSpace(in.GuardianName) == "" {
		fields["parentGuardianName"] = "required"
	}
	if !in.ParentalConsent {
		fields["parentalConsent"] = "consent is required"
	}
	if in.Language != "" && !in.Language.Valid() {
		fields["language"] = fmt.Sprintf("unsupported language %q", in.Language)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
