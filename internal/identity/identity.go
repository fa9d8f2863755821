// Package identity provides the per-install device identifier that namespaces
// persisted solutions.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Header carries the device id on API requests.
const Header = "X-Device-ID"

// FileName is the file under the data directory that holds the CLI's id.
const FileName = "device_id"

var ErrInvalidDeviceID = errors.New("invalid device id")

// DeviceID identifies one install. The zero value is invalid.
type DeviceID string

// New returns a fresh random id.
func New() DeviceID {
	return DeviceID(uuid.NewString())
}

// Parse validates s as a device id. Any non-nil UUID is accepted.
func Parse(s string) (DeviceID, error) {
	s = strings.TrimSpace(s)
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
	}
	if id == uuid.Nil {
		return "", fmt.Errorf("%w: nil uuid", ErrInvalidDeviceID)
	}
	return DeviceID(id.String()), nil
}

func (d DeviceID) String() string { return string(d) }

// Valid reports whether d was produced by New or Parse.
func (d DeviceID) Valid() bool {
	_, err := Parse(string(d))
	return err == nil
}

// LoadOrCreate returns the id stored in dir, creating and persisting a new
// one the first time.
func LoadOrCreate(dir string) (DeviceID, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err == nil {
		return Parse(string(data))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	id := New()
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write device id: %w", err)
	}
	slog.Info("Created device id", "path", path, "device_id", id)
	return id, nil
}

// FromRequest reads and validates the device id header.
func FromRequest(r *http.Request) (DeviceID, error) {
	v := r.Header.Get(Header)
	if v == "" {
		return "", fmt.Errorf("%w: missing %s header", ErrInvalidDeviceID, Header)
	}
	return Parse(v)
}
