// Package repository holds the pgx-backed room and user records. Room
// lifecycle lives here, outside the chat core.
package repository

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrUserExists = errors.New("email already registered")
)

// validIDs reports whether every id parses as a uuid. Ids are compared as
// uuid columns, so anything else cannot match a row.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
