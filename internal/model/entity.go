package model

import "time"

// Entity is a stored record of one kind.
// This is a pure domain model with no database-specific dependencies or tags.
// Partition and ID form the unique key; ID is assigned once at creation and never changes.
type Entity struct {
	Partition    string         `json:"partition"`
	ID           string         `json:"id"`
	Version      string         `json:"version"`
	LastModified time.Time      `json:"last_modified"`
	Fields       map[string]any `json:"fields"`
	// AttachmentRef is nil or the object key of the entity's image.
	AttachmentRef *string `json:"attachment_ref"`
}

// String returns the named field as text, or "" when absent.
func (e *Entity) String(name string) string {
	if e == nil || e.Fields == nil {
		return ""
	}
	if s, ok := e.Fields[name].(string); ok {
		return s
	}
	return ""
}

// HasAttachment reports whether the entity carries a non-empty attachment reference.
func (e *Entity) HasAttachment() bool {
	return e != nil && e.AttachmentRef != nil && *e.AttachmentRef != ""
}

// Ref returns a pointer to a copy of s, for populating AttachmentRef.
func Ref(s string) *string { return &s }
