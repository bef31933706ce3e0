package model

import (
	"fmt"
	"strings"
)

// EntityType identifies the kind of entity whose last activity can be resolved.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type EntityType string

const (
	// EntityTypeUser is an account holder identified by email.
	EntityTypeUser EntityType = "user"
	// EntityTypeIntegration is an API integration identified by application name.
	EntityTypeIntegration EntityType = "integration"
	// EntityTypeToken is an access token identified by token name.
	EntityTypeToken EntityType = "token"
)

// EntityTypes lists the supported entity types in canonical order.
func EntityTypes() []EntityType {
	return []EntityType{EntityTypeUser, EntityTypeIntegration, EntityTypeToken}
}

// Valid returns true if the EntityType is known.
func (t EntityType) Valid() bool {
	return t == EntityTypeUser || t == EntityTypeIntegration || t == EntityTypeToken
}

func (t EntityType) rank() int {
	switch t {
	case EntityTypeUser:
		return 0
	case EntityTypeIntegration:
		return 1
	case EntityTypeToken:
		return 2
	default:
		return 3
	}
}

// UnmarshalText normalises the entity type without rejecting unknown values;
// unknown types are reported per item by the resolver.
func (t *EntityType) UnmarshalText(text []byte) error {
	*t = EntityType(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// JobWorkItem is one maintenance job to execute. RunID is filled in once the
// ledger has recorded the run, before processing starts.
type JobWorkItem struct {
	JobID int64 `json:"job_id"`
	RunID int64 `json:"run_id,omitempty"`
}

// Key returns the identity the pipeline keys results by.
func (w JobWorkItem) Key() string {
	return fmt.Sprintf("job:%d", w.JobID)
}

// EntityKey identifies an entity in activity lookups and snapshots.
type EntityKey struct {
	Type EntityType `json:"type"`
	Name string     `json:"name"`
}

// String renders the key as type/name.
func (k EntityKey) String() string {
	return string(k.Type) + "/" + k.Name
}

// Less orders keys by canonical type order (user, integration, token, then unknown
// types alphabetically) and then by name.
func (k EntityKey) Less(other EntityKey) bool {
	if k.Type != other.Type {
		ri, rj := k.Type.rank(), other.Type.rank()
		if ri != rj {
			return ri < rj
		}
		return k.Type < other.Type
	}
	return k.Name < other.Name
}

// EntityWorkItem is one entity whose last-activity timestamp must be resolved.
type EntityWorkItem struct {
	EntityKey
}

// Key returns the identity the pipeline keys results by.
func (w EntityWorkItem) Key() string {
	return "entity:" + w.String()
}
