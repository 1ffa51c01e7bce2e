// Package manifest reads, validates, and rewrites the manifest.json document
// that accompanies the userData.db store inside a backup archive.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filename is the manifest's fixed name inside an archive.
const Filename = "manifest.json"

// nameTimestampLayout shapes the base name assigned to a merged backup.
const nameTimestampLayout = "2006-01-02_15-04-05"

// Manifest represents the manifest.json structure.
type Manifest struct {
	Name           string         `json:"name"`
	CreationDate   string         `json:"creationDate"`
	Version        int            `json:"version"`
	Type           int            `json:"type"`
	UserDataBackup UserDataBackup `json:"userDataBackup"`
}

// UserDataBackup describes the store file the manifest accompanies.
type UserDataBackup struct {
	LastModifiedDate string `json:"lastModifiedDate"`
	DeviceName       string `json:"deviceName"`
	DatabaseName     string `json:"databaseName"`
	Hash             string `json:"hash"`
	SchemaVersion    int    `json:"schemaVersion"`
}

// SchemaMismatchError reports that two manifests declare different store
// schema versions. Merging across schema versions is not supported.
type SchemaMismatchError struct {
	Source int
	Dest   int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema versions do not match: source declares %d, destination declares %d",
		e.Source, e.Dest)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if m.UserDataBackup.SchemaVersion == 0 {
		return nil, fmt.Errorf("manifest missing userDataBackup.schemaVersion")
	}
	if m.UserDataBackup.DatabaseName == "" {
		return nil, fmt.Errorf("manifest missing userDataBackup.databaseName")
	}
	if _, err := m.LastModified(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Save writes m to path as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// LastModified parses the store's last-modified timestamp. Backups written by
// older app versions carry a naive local stamp with no offset, so both forms
// are accepted.
func (m *Manifest) LastModified() (time.Time, error) {
	value := m.UserDataBackup.LastModifiedDate
	ts, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return ts, nil
	}
	if naive, naiveErr := time.Parse("2006-01-02T15:04:05", value); naiveErr == nil {
		return naive, nil
	}
	return time.Time{}, fmt.Errorf("failed to parse lastModifiedDate %q: %w", value, err)
}

// Validate confirms that source and dest describe stores with the same
// declared schema version.
func Validate(source, dest *Manifest) error {
	if source.UserDataBackup.SchemaVersion != dest.UserDataBackup.SchemaVersion {
		return &SchemaMismatchError{
			Source: source.UserDataBackup.SchemaVersion,
			Dest:   dest.UserDataBackup.SchemaVersion,
		}
	}
	return nil
}

// Update rewrites dest after a merge: the merged store's hash, the later of
// the two last-modified stamps (source wins only when strictly newer), a
// fresh creation date, and a merged_<timestamp> display name. It returns the
// base name, without extension, that the output archive should carry.
func Update(dest, source *Manifest, hash string, now time.Time) (string, error) {
	dest.UserDataBackup.Hash = hash

	srcModified, err := source.LastModified()
	if err != nil {
		return "", err
	}
	dstModified, err := dest.LastModified()
	if err != nil {
		return "", err
	}
	if srcModified.After(dstModified) {
		dest.UserDataBackup.LastModifiedDate = source.UserDataBackup.LastModifiedDate
	}

	dest.CreationDate = now.Format(time.RFC3339)

	name := "merged_" + now.Format(nameTimestampLayout)
	dest.Name = name + ".jwlibrary"
	return name, nil
}
