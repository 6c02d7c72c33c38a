package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/childhealth/fieldsync/internal/platform/auth"
)

var (
	ErrInvalidOTP         = errors.New("invalid OTP")
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrNoSession          = errors.New("no active session")
)

// Mock identity-provider values. OTP delivery is simulated and every
// national id accepts the same code.
const (
	mockOTP       = "123456"
	adminUsername = "admin"
	adminPassword = "admin123"
)

const sessionKey = "session"

// CredentialIssuer signs upload credentials for an identity.
type CredentialIssuer interface {
	Issue(s auth.Subject) (string, error)
}

type Service struct {
	store    Store
	settings SettingsStore
	issuer   CredentialIssuer
	session  *Session
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(store Store, settings SettingsStore, issuer CredentialIssuer, session *Session, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		settings: settings,
		issuer:   issuer,
		session:  session,
		logger:   logger.With().Str("component", "identity").Logger(),
		now:      time.Now,
	}
}

// Session returns the session this service signs in to.
func (s *Service) Session() *Session {
	return s.session
}

// Restore loads the persisted session, if any.
func (s *Service) Restore(ctx context.Context) error {
	raw, ok, err := s.settings.GetSetting(ctx, sessionKey)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil
	}
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable session")
		return s.settings.DeleteSetting(ctx, sessionKey)
	}
	s.session.set(st)
	return nil
}

// SendOTP simulates sending a one-time code to the holder of nationalID.
func (s *Service) SendOTP(ctx context.Context, nationalID string) error {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return fmt.Errorf("national id is required")
	}
	s.logger.Info().Str("national_id", nationalID).Msg("OTP sent")
	return nil
}

// Authenticate signs in a field representative with a national id and OTP.
// The first login for a national id registers a new identity.
func (s *Service) Authenticate(ctx context.Context, nationalID, otp string) (*Identity, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, fmt.Errorf("national id is required")
	}
	if otp != mockOTP {
		return nil, ErrInvalidOTP
	}

	who, err := s.store.GetIdentityByNationalID(ctx, nationalID)
	if err != nil {
		return nil, fmt.Errorf("look up identity: %w", err)
	}
	if who == nil {
		now := s.now().UTC()
		who = &Identity{
			ID:         fmt.Sprintf("rep_%d", now.UnixMilli()),
			NationalID: nationalID,
			Name:       "Field Representative " + nationalID,
			Email:      "rep_" + nationalID + "@health.org",
			Region:     "North Region",
			CreatedAt:  now,
		}
		if err := s.store.SaveIdentity(ctx, who); err != nil {
			return nil, fmt.Errorf("save identity: %w", err)
		}
		s.logger.Info().Str("identity_id", who.ID).Msg("registered representative")
	}

	credential, err := s.issuer.Issue(auth.Subject{
		ID:         who.ID,
		NationalID: who.NationalID,
		Region:     who.Region,
		Role:       auth.RoleRepresentative,
	})
	if err != nil {
		return nil, err
	}

	if err := s.begin(ctx, sessionState{Identity: *who, Credential: credential, UserType: UserRepresentative}); err != nil {
		return nil, err
	}
	return who, nil
}

// AuthenticateAdmin signs in the administrator.
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (*Identity, error) {
	if username != adminUsername || password != adminPassword {
		return nil, ErrInvalidCredentials
	}
	who := adminIdentity
	credential, err := s.issuer.Issue(auth.Subject{ID: who.ID, NationalID: who.NationalID, Region: who.Region, Role: auth.RoleAdmin})
	if err != nil {
		return nil, err
	}
	if err := s.begin(ctx, sessionState{Identity: who, Credential: credential, UserType: UserAdmin}); err != nil {
		return nil, err
	}
	return &who, nil
}

// LoginAsFieldAgent starts an offline session. It can collect records but
// holds no upload credential, so sync refuses to run until the agent
// authenticates.
func (s *Service) LoginAsFieldAgent(ctx context.Context) (*Identity, error) {
	who := fieldAgentIdentity
	if err := s.begin(ctx, sessionState{Identity: who, UserType: UserFieldAgent}); err != nil {
		return nil, err
	}
	return &who, nil
}

// Logout ends the session on this device.
func (s *Service) Logout(ctx context.Context) error {
	s.session.clear()
	if err := s.settings.DeleteSetting(ctx, sessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info().Msg("signed out")
	return nil
}

// RequireAuthForSync reports whether the current session must authenticate
// before it can upload.
func (s *Service) RequireAuthForSync() bool {
	_, ok := s.session.CurrentCredential()
	return !ok
}

func (s *Service) begin(ctx context.Context, st sessionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.settings.PutSetting(ctx, sessionKey, raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.session.set(st)
	s.logger.Info().Str("identity_id", st.Identity.ID).Str("user_type", string(st.UserType)).Msg("signed in")
	return nil
}
