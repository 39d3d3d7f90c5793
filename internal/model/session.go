package model

import "time"

// JoinerMetadataVersion is bumped whenever JoinerMetadata changes shape.
const JoinerMetadataVersion = 1

// JoinerMetadata is the descriptive information an initiator sees before
// approving a joiner. It never carries raw addresses or credentials.
type JoinerMetadata struct {
	Version     int       `json:"metadataVersion"`
	Origin      string    `json:"joinerOrigin"`
	DeviceClass string    `json:"joinerDeviceClass"`
	Browser     string    `json:"joinerBrowser,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

type PairingSession struct {
	Code           string
	DisplayName    string
	State          SessionState
	Initiator      Conn
	Joiner         Conn
	Approved       bool
	JoinerMetadata *JoinerMetadata
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether the code's validity window has passed. A paired
// session has consumed its code and no longer expires.
func (s *PairingSession) IsExpired(now time.Time) bool {
	if s.State == SessionStatePaired {
		return false
	}
	return now.After(s.ExpiresAt)
}

// ExpiresIn is the remaining validity, never negative.
func (s *PairingSession) ExpiresIn(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RoleOf returns the role c is bound to in this session.
func (s *PairingSession) RoleOf(c Conn) (Role, bool) {
	if c == nil {
		return "", false
	}
	if s.Initiator != nil && s.Initiator.ID() == c.ID() {
		return RoleInitiator, true
	}
	if s.Joiner != nil && s.Joiner.ID() == c.ID() {
		return RoleJoiner, true
	}
	return "", false
}

// Counterpart returns the other bound leg for role.
func (s *PairingSession) Counterpart(role Role) Conn {
	if role == RoleInitiator {
		return s.Joiner
	}
	return s.Initiator
}

// HasLiveJoiner reports whether a joiner is bound and its connection is still up.
func (s *PairingSession) HasLiveJoiner() bool {
	return s.Joiner != nil && s.Joiner.Live()
}

// CanRelay holds only when approval happened and both legs are live.
func (s *PairingSession) CanRelay() bool {
	return s.State == SessionStatePaired && s.Approved &&
		s.Initiator != nil && s.Initiator.Live() &&
		s.Joiner != nil && s.Joiner.Live()
}
