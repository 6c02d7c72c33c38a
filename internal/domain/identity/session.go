package identity

import "sync"

// Provider exposes the signed-in identity and its upload credential.
type Provider interface {
	CurrentCredential() (string, bool)
	CurrentIdentity() (*Identity, bool)
}

// Session holds who is signed in on this device. It is created at process
// start, restored from settings, and cleared at logout.
type Session struct {
	mu         sync.RWMutex
	identity   *Identity
	credential string
	userType   UserType
}

func NewSession() *Session {
	return &Session{}
}

// CurrentCredential returns the bearer credential for uploads. Offline
// logins have an identity but no credential.
func (s *Session) CurrentCredential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential, s.credential != ""
}

// CurrentIdentity returns a copy of the signed-in identity.
func (s *Session) CurrentIdentity() (*Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, false
	}
	cp := *s.identity
	return &cp, true
}

func (s *Session) UserType() UserType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userType
}

func (s *Session) IsAdmin() bool {
	return s.UserType() == UserAdmin
}

func (s *Session) IsAuthenticated() bool {
	_, ok := s.CurrentIdentity()
	return ok
}

func (s *Session) set(st sessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := st.Identity
	s.identity = &id
	s.credential = st.Credential
	s.userType = st.UserType
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.credential = ""
	s.userType = ""
}

// sessionState is the persisted form of a Session.
type sessionState struct {
	Identity   Identity `json:"identity"`
	Credential string   `json:"credential,omitempty"`
	UserType   UserType `json:"userType"`
}
