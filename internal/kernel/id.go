package kernel

import "github.com/google/uuid"

// NewID returns a random identifier with the given prefix, e.g. "so-<uuid>".
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
