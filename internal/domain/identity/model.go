package identity

import "time"

// UserType is the kind of session a device is running.
type UserType string

const (
	UserRepresentative UserType = "representative"
	UserFieldAgent     UserType = "field_agent"
	UserAdmin          UserType = "admin"
)

// Identity is a field representative (or administrator) known to the
// device. Records are owned by an identity through its ID.
type Identity struct {
	ID         string    `json:"id"`
	NationalID string    `json:"nationalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Region     string    `json:"region"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Fixed identities for the admin and offline field-agent logins.
var (
	adminIdentity = Identity{
		ID:         "admin_001",
		NationalID: "admin",
		Name:       "System Administrator",
		Email:      "admin@health.org",
		Region:     "All Regions",
	}
	fieldAgentIdentity = Identity{
		ID:         "field_agent_001",
		NationalID: "field_agent",
		Name:       "Field Agent (Offline Mode)",
		Email:      "fieldagent@health.org",
		Region:     "Local Region",
	}
)
