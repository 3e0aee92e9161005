package model

// AnonymousOwner is the identity used before the user signs in.
const AnonymousOwner = "demo-user"

// Session is the caller-resolved identity passed into every network-facing
// operation.
type Session struct {
	OwnerID          string
	RemoteConfigured bool
}

// IsAnonymous reports whether the owner is the local placeholder identity.
func IsAnonymous(ownerID string) bool {
	return ownerID == "" || ownerID == AnonymousOwner
}

// CanSync reports whether remote replication is allowed for the session.
func (s Session) CanSync() bool {
	return s.RemoteConfigured && !IsAnonymous(s.OwnerID)
}
