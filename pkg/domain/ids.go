// Package domain holds the typed identifiers shared across the engine.
//
// Every aggregate gets its own UUID-backed ID type so that a user ID can
// never be passed where an activity ID is expected. Parsing enforces the
// invariant that IDs are valid, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "volunteerhub/pkg/domain-errors"
)

type (
	// UserID identifies a registered user (volunteer, organizer or moderator).
	UserID uuid.UUID

	// ActivityID identifies a capacity-limited, time-bound activity.
	ActivityID uuid.UUID

	// RegistrationID identifies the (user, activity) registration row.
	RegistrationID uuid.UUID

	// ObligationID identifies a derived notification obligation.
	ObligationID uuid.UUID

	// RoomID identifies a chat room attached to an activity.
	RoomID uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id ActivityID) String() string     { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id ObligationID) String() string   { return uuid.UUID(id).String() }
func (id RoomID) String() string         { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ActivityID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ObligationID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RoomID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewActivityID returns a fresh random activity ID.
func NewActivityID() ActivityID { return ActivityID(uuid.New()) }

// NewRegistrationID returns a fresh random registration ID.
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }

// NewObligationID returns a fresh random obligation ID.
func NewObligationID() ObligationID { return ObligationID(uuid.New()) }

// NewRoomID returns a fresh random room ID.
func NewRoomID() RoomID { return RoomID(uuid.New()) }

// ParseUserID parses and validates a user ID string.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

// ParseActivityID parses and validates an activity ID string.
func ParseActivityID(s string) (ActivityID, error) {
	u, err := parseUUID(s)
	return ActivityID(u), err
}

// ParseRegistrationID parses and validates a registration ID string.
func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s)
	return RegistrationID(u), err
}

// ParseObligationID parses and validates an obligation ID string.
func ParseObligationID(s string) (ObligationID, error) {
	u, err := parseUUID(s)
	return ObligationID(u), err
}

// ParseRoomID parses and validates a room ID string.
func ParseRoomID(s string) (RoomID, error) {
	u, err := parseUUID(s)
	return RoomID(u), err
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
