package constraints

// Job statuses. published, failed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusPublishing = "publishing"
	StatusPublished  = "published"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

const DefaultMaxAttempts = 3

// IsTerminal reports whether a job in status s can never change again.
func IsTerminal(s string) bool {
	switch s {
	case StatusPublished, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Platform keys
const (
	PlatformTwitter  = "twitter"
	PlatformLinkedIn = "linkedin"
	PlatformYouTube  = "youtube"
)

// Membership roles and statuses
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"

	MembershipActive  = "active"
	MembershipInvited = "invited"
	MembershipRevoked = "revoked"
)
