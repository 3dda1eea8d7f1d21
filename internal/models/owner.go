package models

import (
	"strconv"
	"strings"
)

type ownerKind uint8

const (
	ownerNone ownerKind = iota
	ownerUser
	ownerGuest
)

// Owner is either an authenticated user or an anonymous checkout session, never both.
type Owner struct {
	kind      ownerKind
	userID    int64
	sessionID string
}

func AuthenticatedOwner(userID int64) Owner {
	return Owner{kind: ownerUser, userID: userID}
}

func GuestOwner(sessionID string) Owner {
	return Owner{kind: ownerGuest, sessionID: strings.TrimSpace(sessionID)}
}

func (o Owner) UserID() (int64, bool) {
	return o.userID, o.kind == ownerUser
}

func (o Owner) SessionID() (string, bool) {
	return o.sessionID, o.kind == ownerGuest
}

// Valid reports whether the owner carries a usable identifier.
func (o Owner) Valid() bool {
	switch o.kind {
	case ownerUser:
		return o.userID > 0
	case ownerGuest:
		return o.sessionID != ""
	}
	return false
}

func (o Owner) String() string {
	switch o.kind {
	case ownerUser:
		return "user:" + strconv.FormatInt(o.userID, 10)
	case ownerGuest:
		return "guest:" + o.sessionID
	}
	return "none"
}

// Caller is who is asking: possibly an authenticated user, possibly carrying a guest session, or both.
type Caller struct {
	UserID    int64
	SessionID string
}

func (c Caller) Authenticated() bool {
	return c.UserID > 0
}

// Owner picks the identity new orders are recorded under; authentication wins over a session.
func (c Caller) Owner() Owner {
	if c.Authenticated() {
		return AuthenticatedOwner(c.UserID)
	}
	return GuestOwner(c.SessionID)
}

// CanSee applies the dual ownership rule: the user matches, or the order is a guest
// order and the session matches.
func (c Caller) CanSee(o Owner) bool {
	switch o.kind {
	case ownerUser:
		return c.Authenticated() && c.UserID == o.userID
	case ownerGuest:
		return c.SessionID != "" && c.SessionID == o.sessionID
	}
	return false
}
