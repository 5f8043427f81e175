package models

import "errors"

// Storage-level errors shared by every backend
var (
	ErrVersionConflict = errors.New("concurrent modification detected")
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("record already exists")
)
