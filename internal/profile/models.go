package profile

import (
	"time"

	"custodia/pkg/domain"
)

// ActorProfile is an actor's node in the manager/subordinate tree.
// ManagerID is a weak reference: it identifies a relation and never implies
// lifetime coupling; a dangling manager simply limits visibility.
type ActorProfile struct {
	ID          domain.ActorID      `json:"id"`
	DisplayName string              `json:"display_name"`
	Role        domain.Role         `json:"role"`
	ManagerID   *domain.ActorID     `json:"manager_id,omitempty"`
	Access      domain.AccessStatus `json:"access"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Patch mutates the administratively controlled fields. Profiles themselves
// are created by the external identity flow; only role, manager, and access
// are owned here.
type Patch struct {
	Role      *domain.Role         `json:"role,omitempty"`
	ManagerID *domain.ActorID      `json:"manager_id,omitempty"`
	Access    *domain.AccessStatus `json:"access,omitempty"`
}
