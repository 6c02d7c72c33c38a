package fieldcrypt

import (
	"fmt"

	"github.com/childhealth/fieldsync/internal/domain/child"
)

// Record fields that hold personal data and are stored encrypted. Everything
// else on a record (ages, measurements, flags, timestamps) stays in the
// clear so it can be indexed and aggregated.
const (
	FieldChildName    = "childName"
	FieldGuardianName = "guardianName"
	FieldFacePhoto    = "facePhoto"
)

// SensitiveFields lists the encrypted record fields in storage order.
func SensitiveFields() []string {
	return []string{FieldChildName, FieldGuardianName, FieldFacePhoto}
}

// Values points at the strings holding sensitive fields, keyed by field
// name.
type Values map[string]*string

// RecordValues returns the sensitive fields of r. Sealing or opening the
// result changes r in place.
func RecordValues(r *child.Record) Values {
	return Values{
		FieldChildName:    &r.ChildName,
		FieldGuardianName: &r.GuardianName,
		FieldFacePhoto:    &r.FacePhoto,
	}
}

// Seal encrypts each sensitive field in v independently, so one field can be
// read without the others. Empty values stay empty. A nil enc is a no-op.
func Seal(enc FieldEncryptor, v Values) error {
	if enc == nil {
		return nil
	}
	for _, name := range SensitiveFields() {
		p := v[name]
		if p == nil || *p == "" {
			continue
		}
		ct, err := enc.Encrypt(*p)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*p = ct
	}
	return nil
}

// Open decrypts each sensitive field in v. A field that will not decrypt
// keeps its stored value and its error is returned keyed by field name;
// the other fields are still opened.
func Open(enc FieldEncryptor, v Values) map[string]error {
	if enc == nil {
		return nil
	}
	var failed map[string]error
	for _, name := range SensitiveFields() {
		p := v[name]
		if p == nil || *p == "" {
			continue
		}
		pt, err := enc.Decrypt(*p)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[name] = err
			continue
		}
		*p = pt
	}
	return failed
}
