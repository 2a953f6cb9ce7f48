package domain

import "time"

// Syncable provides common fields for entities that participate in
// synchronization with the collaborative-mode API. It gets embedded in any
// domain type that can be synced or soft-deleted.
type Syncable struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	ID        string     `json:"id"`
}

// Touch updates the UpdatedAt timestamp to the current time.
// Call this whenever the underlying entity changes.
func (s *Syncable) Touch() {
	s.UpdatedAt = time.Now()
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
// Call this when creating a new entity.
func (s *Syncable) InitTimestamps() {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
}

// IsDeleted returns true if this entity has been soft-deleted (trashed).
func (s *Syncable) IsDeleted() bool {
	return s.DeletedAt != nil
}

// MarkDeleted soft-deletes the entity by setting DeletedAt to now.
// This also updates UpdatedAt so the deletion appears in delta sync queries.
func (s *Syncable) MarkDeleted() {
	now := time.Now()
	s.DeletedAt = &now
	s.UpdatedAt = now
}

// Restore clears the soft-delete marker.
func (s *Syncable) Restore() {
	s.DeletedAt = nil
	s.UpdatedAt = time.Now()
}
