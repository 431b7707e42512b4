package bridgeio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jstorrent/iobridge/internal/config"
	"github.com/jstorrent/iobridge/internal/reload"
)

// DiscoveryPath returns the path to rpc-info.json under the user's config
// directory, per spec §6 ("$CONFIG/jstorrent-native/rpc-info.json").
func DiscoveryPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("bridgeio: resolving config dir: %w", err)
	}
	return filepath.Join(configDir, config.DiscoveryDirName, config.DiscoveryFileName), nil
}

// ReadDiscovery reads and parses rpc-info.json at path.
func ReadDiscovery(path string) (reload.DiscoveryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reload.DiscoveryFile{}, err
	}
	var doc reload.DiscoveryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return reload.DiscoveryFile{}, fmt.Errorf("bridgeio: parsing discovery file: %w", err)
	}
	return doc, nil
}

// WriteDiscovery persists doc to path, creating parent directories as
// needed. The Bridge is the sole owner of this file; the Daemon only reads it.
func WriteDiscovery(path string, doc reload.DiscoveryFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("bridgeio: creating discovery dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("bridgeio: marshaling discovery file: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// FindProfile locates the profile entry matching installID, or returns
// ok=false if no entry matches.
func FindProfile(doc reload.DiscoveryFile, installID string) (reload.ProfileEntry, bool) {
	for _, p := range doc.Profiles {
		if p.InstallID == installID {
			return p, true
		}
	}
	return reload.ProfileEntry{}, false
}

// UpsertProfile inserts or replaces the profile entry with the same
// install id and returns the updated document.
func UpsertProfile(doc reload.DiscoveryFile, entry reload.ProfileEntry) reload.DiscoveryFile {
	for i := range doc.Profiles {
		if doc.Profiles[i].InstallID == entry.InstallID {
			doc.Profiles[i] = entry
			return doc
		}
	}
	doc.Profiles = append(doc.Profiles, entry)
	return doc
}
