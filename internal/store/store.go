// Package store owns all SQL persistence for the marketplace. Methods map
// missing rows to models.ErrNotFound so callers can branch with errors.Is
// instead of inspecting sql.ErrNoRows.
package store

import (
	"database/sql"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}
