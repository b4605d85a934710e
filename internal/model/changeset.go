package model

import "time"

// TagChange records a single tag write and the value it replaced.
type TagChange struct {
	PrimitiveID string  `json:"primitive_id"`
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Previous    *string `json:"previous,omitempty"` // nil when the key was absent
}

// Changeset groups all tag writes of one batch into a single undoable unit.
type Changeset struct {
	ID        string      `json:"id"`
	Comment   string      `json:"comment"`
	Changes   []TagChange `json:"changes"`
	CreatedAt time.Time   `json:"created_at"`
	UndoneAt  *time.Time  `json:"undone_at,omitempty"`
}

// PrimitiveIDs returns the distinct primitive ids touched by the changeset in
// first-seen order.
func (c *Changeset) PrimitiveIDs() []string {
	seen := make(map[string]bool, len(c.Changes))
	var ids []string
	for _, ch := range c.Changes {
		if seen[ch.PrimitiveID] {
			continue
		}
		seen[ch.PrimitiveID] = true
		ids = append(ids, ch.PrimitiveID)
	}
	return ids
}
