// Package repository defines the durable store used by the booking
// services and its MySQL adapter.  Services only see the Store, Tx and
// Catalog interfaces; each deployment picks one adapter (MySQL here, an
// in-memory one in repository/memory).
//
// The sentinel errors below are shared by every adapter so that services
// can translate them into typed failures without knowing which adapter is
// in use.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a conditional update matched no row
// because the row changed since it was read (version or status moved on).
var ErrVersionConflict = errors.New("version conflict")

// ErrDuplicate is returned when an insert violates a unique key, such as
// creating seats for a date that already has them.
var ErrDuplicate = errors.New("duplicate")
