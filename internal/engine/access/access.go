// Package access is the single authorization decision point for the engine.
// Check is a pure function over (principal, operation class, entity); it
// never touches storage.
package access

import (
	"errors"
	"fmt"
)

// Class is the authorization class of an operation.
type Class string

const (
	AnonymousOK       Class = "anonymous-ok"
	AuthenticatedOnly Class = "authenticated-only"
	OwnerOnly         Class = "owner-only"
	ParticipantOnly   Class = "participant-only"
	AdminOnly         Class = "admin-only"
)

// Principal identifies the caller. A zero ActorID means anonymous.
type Principal struct {
	ActorID string
	Admin   bool
}

// Entity carries the ownership facts a decision needs. OwnerID applies to
// owner-only checks; Participants to participant-only checks.
type Entity struct {
	OwnerID      string
	Participants []string
}

// ErrUnauthenticated indicates no principal was presented.
var ErrUnauthenticated = errors.New("authentication required")

// ForbiddenError indicates the principal lacks rights for the class.
type ForbiddenError struct {
	Class Class
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("operation requires %s access", e.Class)
}

// Check decides allow (nil) or deny. Owner and participant classes are
// strict: admins do not pass them implicitly. Operations with an
// owner-or-admin rule must check Principal.Admin themselves.
func Check(p Principal, class Class, e Entity) error {
	if class == AnonymousOK {
		return nil
	}
	if p.ActorID == "" {
		return ErrUnauthenticated
	}
	switch class {
	case AuthenticatedOnly:
		return nil
	case OwnerOnly:
		if p.ActorID == e.OwnerID {
			return nil
		}
	case ParticipantOnly:
		for _, id := range e.Participants {
			if id != "" && id == p.ActorID {
				return nil
			}
		}
	case AdminOnly:
		if p.Admin {
			return nil
		}
	}
	return ForbiddenError{Class: class}
}
