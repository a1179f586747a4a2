package models

import (
	"time"
)

// Known world codes. Worlds are extensible; these three are seeded and are
// the only ones the transfer eligibility rules know about.
const (
	WorldJDE  = "JDE"
	WorldJDMO = "JDMO"
	WorldDBCS = "DBCS"
)

// World is an isolated workflow domain. Every dossier belongs to exactly
// one world at a time; moving a dossier between worlds goes through a
// Transfer, never an in-place update.
type World struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an application actor: the authenticated caller of mutating
// operations, a task assignee, or an appointment owner.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	WorldID   *string   `json:"world_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
