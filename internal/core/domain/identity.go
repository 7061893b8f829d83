package domain

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleAuthor    Role = "author"
	RoleOrganizer Role = "organizer"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAuthor:
		return RoleAuthor, true
	case RoleOrganizer:
		return RoleOrganizer, true
	default:
		return "", false
	}
}

// Identity is the caller as established by the authentication layer.
type Identity struct {
	UserID int64
	Role   Role
	Email  string
}

// OrganizerGrant is the capability required by organizer-only operations.
// It can only be obtained from an Identity carrying the organizer role.
type OrganizerGrant struct {
	userID int64
}

func (g OrganizerGrant) UserID() int64 { return g.userID }

func (g OrganizerGrant) valid() bool { return g.userID != 0 }

// AsOrganizer checks the role once and returns the organizer capability.
func (id Identity) AsOrganizer() (OrganizerGrant, error) {
	if id.UserID == 0 {
		return OrganizerGrant{}, WrapError(ErrUnauthorized, "organizer grant", errors.New("anonymous identity"))
	}
	if id.Role != RoleOrganizer {
		return OrganizerGrant{}, WrapError(ErrForbidden, "organizer grant", errors.New("organizer role required"))
	}
	return OrganizerGrant{userID: id.UserID}, nil
}

// RequireGrant rejects zero-value grants that were not issued by AsOrganizer.
func RequireGrant(g OrganizerGrant, operation string) error {
	if !g.valid() {
		return WrapError(ErrForbidden, operation, errors.New("missing organizer grant"))
	}
	return nil
}

// CanRead reports whether the identity may see the given submission.
func (id Identity) CanRead(sub *Submission) bool {
	if sub == nil || id.UserID == 0 {
		return false
	}
	return id.Role == RoleOrganizer || sub.AuthorID == id.UserID
}
