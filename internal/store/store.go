// Package store persists solution records per device.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scanhelper/scanhelper/internal/identity"
)

// ErrNotFound is returned when a record does not exist for the device.
var ErrNotFound = errors.New("solution not found")

// SolutionRecord is one saved problem and its solution. Records are unique
// per (DeviceID, ImageHash).
type SolutionRecord struct {
	ID          string            `json:"id" yaml:"id"`
	DeviceID    identity.DeviceID `json:"device_id" yaml:"device_id"`
	ImageBase64 string            `json:"image,omitempty" yaml:"-"`
	ImageHash   string            `json:"image_hash" yaml:"image_hash"`
	Solution    string            `json:"solution" yaml:"solution"`
	Bookmarked  bool              `json:"bookmarked" yaml:"bookmarked"`
	CreatedAt   time.Time         `json:"timestamp" yaml:"timestamp"`
}

// ListOptions filters List.
type ListOptions struct {
	BookmarkedOnly bool
	Limit          int // 0 = no limit
}

// Repository defines the interface for persisting solution records.
type Repository interface {
	// FindByHash returns the device's record for an image hash, or nil if
	// there is none.
	FindByHash(ctx context.Context, deviceID identity.DeviceID, imageHash string) (*SolutionRecord, error)

	// Upsert creates the record or updates the existing one with the same
	// device and image hash. rec.ID is set to the stored id.
	Upsert(ctx context.Context, rec *SolutionRecord) error

	// List returns the device's records, newest first.
	List(ctx context.Context, deviceID identity.DeviceID, opts ListOptions) ([]SolutionRecord, error)

	// Delete removes one record.
	Delete(ctx context.Context, deviceID identity.DeviceID, id string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
