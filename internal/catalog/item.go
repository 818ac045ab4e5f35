// Package catalog implements the connection/folder tree on top of a flat
// item store: the versioned codec, tree-shape operations and the
// consistency maintenance that runs on first access.
package catalog

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

var (
	ErrCircularReference     = errors.New("circular reference")
	ErrUnknownStorageVersion = errors.New("unknown storage version")
	ErrDuplicateName         = errors.New("duplicate name")
	ErrInvalidParent         = errors.New("invalid parent")
	ErrReconcileStalled      = errors.New("orphan reconciliation stalled")
	ErrReconcileLimit        = errors.New("orphan reconciliation hit iteration limit")
)

// ItemType tags a StoredItem as a connection or a folder. It never changes
// after creation.
type ItemType string

const (
	ItemTypeConnection ItemType = "connection"
	ItemTypeFolder     ItemType = "folder"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeConnection, ItemTypeFolder:
		return true
	default:
		return false
	}
}

// Auth method identifiers stored in Properties.
const (
	AuthMethodNativeAuth = "NativeAuth"
	AuthMethodEntraID    = "MicrosoftEntraID"
)

// StoredItem is a node of the catalog tree.
type StoredItem struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       ItemType   `json:"type"`
	ParentID   string     `json:"parent_id,omitempty"`
	Zone       db.Zone    `json:"zone"`
	Properties Properties `json:"properties"`
	Secrets    Secrets    `json:"-"`
}

func (s *StoredItem) IsFolder() bool {
	return s.Type == ItemTypeFolder
}

func (s *StoredItem) IsConnection() bool {
	return s.Type == ItemTypeConnection
}

// Properties holds connection metadata. Folders leave it empty.
type Properties struct {
	API                   string                 `json:"api,omitempty"`
	EmulatorConfiguration *EmulatorConfiguration `json:"emulator_configuration,omitempty"`
	AvailableAuthMethods  []string               `json:"available_auth_methods,omitempty"`
	SelectedAuthMethod    string                 `json:"selected_auth_method,omitempty"`
}

type EmulatorConfiguration struct {
	IsEmulator              bool `json:"is_emulator" mapstructure:"isEmulator"`
	DisableEmulatorSecurity bool `json:"disable_emulator_security" mapstructure:"disableEmulatorSecurity"`
}

// Secrets is the sensitive part of an item. It is excluded from JSON output.
type Secrets struct {
	ConnectionString string
	NativeAuth       *NativeAuth
	EntraID          *EntraID
}

type NativeAuth struct {
	Username string
	Password string
}

type EntraID struct {
	TenantID       string
	SubscriptionID string
}

// EffectiveConnectionString returns the connection string with native
// credentials put back into the userinfo section, ready for a driver.
func (s Secrets) EffectiveConnectionString() string {
	if s.NativeAuth == nil || s.NativeAuth.Username == "" {
		return s.ConnectionString
	}
	return withCredentials(s.ConnectionString, s.NativeAuth.Username, s.NativeAuth.Password)
}

// NewID returns a new sortable item id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
