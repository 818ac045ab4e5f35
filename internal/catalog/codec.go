package catalog

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

// Storage format versions. The empty string marks items written before
// versioning existed.
const (
	StorageVersionLegacy  = ""
	StorageVersion1       = "1.0"
	StorageVersion2       = "2.0"
	StorageVersion3       = "3.0"
	CurrentStorageVersion = StorageVersion3
)

// FolderPlaceholderConnectionString is written as the secret of every folder.
// Older readers assume each item carries a connection string.
const FolderPlaceholderConnectionString = "mongodb://placeholder.folder.local:27017"

// Positions inside the secrets array from version 2.0 on.
const (
	secretConnectionString = iota
	secretNativeUsername
	secretNativePassword
	secretEntraTenantID
	secretEntraSubscriptionID
	secretCount
)

// wireProps is the union of every property shape ever written. Each
// version only reads the fields it defined.
type wireProps struct {
	// legacy
	IsEmulator              bool `mapstructure:"isEmulator"`
	DisableEmulatorSecurity bool `mapstructure:"disableEmulatorSecurity"`

	// 1.0
	API                   string                 `mapstructure:"api"`
	EmulatorConfiguration *EmulatorConfiguration `mapstructure:"emulatorConfiguration"`

	// 2.0
	AvailableAuthMethods []string `mapstructure:"availableAuthMethods"`
	SelectedAuthMethod   string   `mapstructure:"selectedAuthMethod"`

	// 3.0
	Type     string `mapstructure:"type"`
	ParentID string `mapstructure:"parentId"`
}

func decodeProps(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Decode converts a stored item into the current in-memory shape, upgrading
// older versions on the fly. Unrecognized versions yield
// ErrUnknownStorageVersion.
func Decode(zone db.Zone, raw *db.RawItem) (*StoredItem, error) {
	if raw == nil {
		return nil, fmt.Errorf("cannot decode nil item")
	}
	if raw.Unreadable {
		return nil, fmt.Errorf("item %s: stored value is unreadable", raw.ID)
	}
	item := &StoredItem{
		ID:   raw.ID,
		Name: raw.Name,
		Type: ItemTypeConnection,
		Zone: zone,
	}

	var p wireProps
	switch raw.Version {
	case StorageVersionLegacy, StorageVersion1, StorageVersion2, StorageVersion3:
		if err := decodeProps(raw.Properties, &p); err != nil {
			return nil, fmt.Errorf("failed to decode item %s: %w", raw.ID, err)
		}
	default:
		return nil, fmt.Errorf("item %s version %q: %w", raw.ID, raw.Version, ErrUnknownStorageVersion)
	}

	switch raw.Version {
	case StorageVersionLegacy:
		item.Properties.API = p.API
		if p.IsEmulator || p.DisableEmulatorSecurity {
			item.Properties.EmulatorConfiguration = &EmulatorConfiguration{
				IsEmulator:              p.IsEmulator,
				DisableEmulatorSecurity: p.DisableEmulatorSecurity,
			}
		}
		migrateEmbeddedCredentials(item, secretAt(raw.Secrets, secretConnectionString))

	case StorageVersion1:
		item.Properties.API = p.API
		item.Properties.EmulatorConfiguration = p.EmulatorConfiguration
		migrateEmbeddedCredentials(item, secretAt(raw.Secrets, secretConnectionString))

	case StorageVersion2:
		applyV2(item, p)
		item.Secrets = decodeSecrets(raw.Secrets)

	case StorageVersion3:
		if p.Type != "" {
			item.Type = ItemType(p.Type)
		}
		if !item.Type.Valid() {
			return nil, fmt.Errorf("item %s has unknown type %q", raw.ID, p.Type)
		}
		item.ParentID = p.ParentID
		if item.IsFolder() {
			item.Secrets.ConnectionString = secretAt(raw.Secrets, secretConnectionString)
			return item, nil
		}
		applyV2(item, p)
		item.Secrets = decodeSecrets(raw.Secrets)
	}

	return item, nil
}

func applyV2(item *StoredItem, p wireProps) {
	item.Properties.API = p.API
	item.Properties.EmulatorConfiguration = p.EmulatorConfiguration
	if len(p.AvailableAuthMethods) > 0 {
		item.Properties.AvailableAuthMethods = p.AvailableAuthMethods
	}
	item.Properties.SelectedAuthMethod = p.SelectedAuthMethod
}

// migrateEmbeddedCredentials moves credentials found in a pre-2.0
// connection string into the native auth secret.
func migrateEmbeddedCredentials(item *StoredItem, connStr string) {
	stripped, user, pass := extractCredentials(connStr)
	item.Secrets.ConnectionString = stripped
	if user == "" && pass == "" {
		return
	}
	item.Secrets.NativeAuth = &NativeAuth{Username: user, Password: pass}
	item.Properties.AvailableAuthMethods = []string{AuthMethodNativeAuth}
	item.Properties.SelectedAuthMethod = AuthMethodNativeAuth
}

func decodeSecrets(secrets []string) Secrets {
	s := Secrets{ConnectionString: secretAt(secrets, secretConnectionString)}
	user, pass := secretAt(secrets, secretNativeUsername), secretAt(secrets, secretNativePassword)
	if user != "" || pass != "" {
		s.NativeAuth = &NativeAuth{Username: user, Password: pass}
	}
	tenant, sub := secretAt(secrets, secretEntraTenantID), secretAt(secrets, secretEntraSubscriptionID)
	if tenant != "" || sub != "" {
		s.EntraID = &EntraID{TenantID: tenant, SubscriptionID: sub}
	}
	return s
}

func secretAt(secrets []string, i int) string {
	if i < len(secrets) {
		return secrets[i]
	}
	return ""
}

// Encode converts an item into the current storage version. Folders always
// carry the placeholder secret and no connection properties.
func Encode(item *StoredItem) *db.RawItem {
	props := map[string]any{"type": string(item.Type)}
	if item.ParentID != "" {
		props["parentId"] = item.ParentID
	}

	raw := &db.RawItem{
		ID:         item.ID,
		Name:       item.Name,
		Version:    CurrentStorageVersion,
		Properties: props,
	}

	if item.IsFolder() {
		raw.Secrets = []string{FolderPlaceholderConnectionString}
		return raw
	}

	p := item.Properties
	if p.API != "" {
		props["api"] = p.API
	}
	if p.EmulatorConfiguration != nil {
		props["emulatorConfiguration"] = map[string]any{
			"isEmulator":              p.EmulatorConfiguration.IsEmulator,
			"disableEmulatorSecurity": p.EmulatorConfiguration.DisableEmulatorSecurity,
		}
	}
	if len(p.AvailableAuthMethods) > 0 {
		props["availableAuthMethods"] = append([]string(nil), p.AvailableAuthMethods...)
	}
	if p.SelectedAuthMethod != "" {
		props["selectedAuthMethod"] = p.SelectedAuthMethod
	}

	secrets := make([]string, secretCount)
	secrets[secretConnectionString] = item.Secrets.ConnectionString
	if na := item.Secrets.NativeAuth; na != nil {
		secrets[secretNativeUsername] = na.Username
		secrets[secretNativePassword] = na.Password
	}
	if e := item.Secrets.EntraID; e != nil {
		secrets[secretEntraTenantID] = e.TenantID
		secrets[secretEntraSubscriptionID] = e.SubscriptionID
	}
	// trailing empty slots are not written
	n := len(secrets)
	for n > 1 && secrets[n-1] == "" {
		n--
	}
	raw.Secrets = secrets[:n]
	return raw
}
