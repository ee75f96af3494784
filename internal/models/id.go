package models

import "github.com/google/uuid"

// NewID returns a fresh random identifier for a page or block.
func NewID() string {
	return uuid.NewString()
}
