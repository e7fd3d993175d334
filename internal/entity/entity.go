// Package entity defines the identities that participate in conversations:
// the system itself, human users, and project agents.
package entity

import "fmt"

// Role classifies a conversation participant. The bridge routes messages
// based on the sender's role.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
)

// ID identifies a conversation participant.
type ID struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// New creates an entity ID.
func New(id, name string, role Role) ID {
	return ID{ID: id, Name: name, Role: role}
}

// System returns the well-known system identity.
func System() ID {
	return ID{ID: "system", Name: "System", Role: RoleSystem}
}

// Agent returns the identity of the agent attached to a project.
func Agent(projectName string) ID {
	return ID{
		ID:   "agent-" + projectName,
		Name: fmt.Sprintf("Agent (%s)", projectName),
		Role: RoleAgent,
	}
}

func (e ID) String() string {
	return fmt.Sprintf("%s (%s)", e.Name, e.ID)
}
