package models

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePassenger:
		return RolePassenger, true
	case RoleDriver:
		return RoleDriver, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Actor is the caller of an operation as supplied by the identity provider.
// It is resolved once at the API boundary; services only ask it questions.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func Passenger(id uuid.UUID) Actor { return Actor{ID: id, Role: RolePassenger} }
func Driver(id uuid.UUID) Actor    { return Actor{ID: id, Role: RoleDriver} }
func Admin(id uuid.UUID) Actor     { return Actor{ID: id, Role: RoleAdmin} }

// System is used for transitions triggered by the platform itself
// (payment callbacks, expiry sweep, ride cancellation cascade).
func System() Actor { return Actor{Role: RoleSystem} }

func (a Actor) IsPassenger() bool { return a.Role == RolePassenger }
func (a Actor) IsDriver() bool    { return a.Role == RoleDriver }
func (a Actor) IsAdmin() bool     { return a.Role == RoleAdmin }
func (a Actor) IsSystem() bool    { return a.Role == RoleSystem }

// Privileged actors may act on any booking or ride.
func (a Actor) Privileged() bool { return a.IsAdmin() || a.IsSystem() }

func (a Actor) String() string {
	if a.IsSystem() {
		return string(RoleSystem)
	}
	return string(a.Role) + ":" + a.ID.String()
}
