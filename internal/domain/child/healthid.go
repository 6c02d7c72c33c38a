package child

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HealthIDPrefix starts every generated health id.
const HealthIDPrefix = "CHR"

// GenerateHealthID returns a new human-readable health id of the form
// CHR-<base36 unix millis>-<8 random chars>, uppercased.
//
// The random part comes from a v4 uuid, so ids generated within the same
// millisecond on one device still differ.
func GenerateHealthID() string {
	return healthIDAt(time.Now())
}

func healthIDAt(t time.Time) string {
	ts := strconv.FormatInt(t.UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToUpper(HealthIDPrefix + "-" + ts + "-" + random)
}

// ValidHealthID reports whether id has the shape GenerateHealthID produces.
func ValidHealthID(id string) bool {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != HealthIDPrefix {
		return false
	}
	if parts[1] == "" || len(parts[2]) != 8 {
		return false
	}
	for _, p := range parts[1:] {
		for _, r := range p {
			if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}
