// Package actor identifies the user or system performing a stock operation and
// the location that user is bound to.
//
// The identity collaborator supplies (actor id, actor location id, global admin)
// for every call; services use CanActAt to reject location-scoped transitions
// requested from the wrong location.
package actor

import (
	"context"
	"fmt"
)

// SystemID is the actor id recorded for automated work such as POS event ingestion.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID string `json:"id"`

	// Name is optional and only used for logging.
	Name string `json:"name,omitempty"`

	// LocationID is the location the actor works at. Empty for head-office users.
	LocationID string `json:"location_id,omitempty"`

	// IsGlobalAdmin allows acting on behalf of any location.
	IsGlobalAdmin bool `json:"is_global_admin"`
}

// CanActAt reports whether the actor may perform a transition bound to locationID.
func (a *Actor) CanActAt(locationID string) bool {
	if a == nil {
		return false
	}
	if a.IsGlobalAdmin {
		return true
	}
	return a.LocationID != "" && a.LocationID == locationID
}

// CanActAtAny reports whether CanActAt holds for at least one of the locations.
func (a *Actor) CanActAtAny(locationIDs ...string) bool {
	for _, id := range locationIDs {
		if a.CanActAt(id) {
			return true
		}
	}
	return false
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	if a.Name != "" {
		return fmt.Sprintf("%s (%s@%s)", a.Name, a.ID, a.LocationID)
	}
	return fmt.Sprintf("%s@%s", a.ID, a.LocationID)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the service itself. It acts as a
// global admin so that event-driven adjustments are not location restricted.
func SystemActor() *Actor {
	return &Actor{
		ID:            SystemID,
		Name:          "system",
		IsGlobalAdmin: true,
	}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == SystemID
}
