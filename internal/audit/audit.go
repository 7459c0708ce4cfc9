// Package audit records what happened to each tenant's documents.
package audit

import "time"

// Action describes what was done.
type Action string

const (
	ActionUpload   Action = "upload"
	ActionProcess  Action = "process"
	ActionDelete   Action = "delete"
	ActionQuery    Action = "query"
	ActionPurge    Action = "purge"
	ActionRecover  Action = "recover"
	ActionRegister Action = "register"
)

// SystemActor is the actor id for actions nobody requested directly.
const SystemActor = "system"

// Entry is a single audit trail record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TenantID  string    `json:"tenant_id"`
	ActorID   string    `json:"actor_id"`
	Action    Action    `json:"action"`
	Filename  string    `json:"filename,omitempty"`
	// Outcome is the status string of the operation, e.g. a file status.
	Outcome string `json:"outcome,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
