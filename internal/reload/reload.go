// Package reload implements the config-reload endpoint of spec §4.11: it
// re-reads the Bridge's discovery file, locates the profile matching this
// daemon's install id, and atomically swaps the roots table. Concurrent
// reloads are collapsed with singleflight so property §8 "never observe a
// root table mixing old and new entries" holds without extra ceremony.
// Grounded on teacher's bridge/userconfig JSON-file-reading idiom.
package reload

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/mordilloSan/go-logger/logger"
	"golang.org/x/sync/singleflight"

	"github.com/jstorrent/iobridge/internal/roots"
)

// DiscoveryFile is the on-disk shape of rpc-info.json (spec §6).
type DiscoveryFile struct {
	Version  uint32          `json:"version"`
	Profiles []ProfileEntry  `json:"profiles"`
}

// ProfileEntry is one Bridge profile entry within the discovery file.
type ProfileEntry struct {
	InstallID    string          `json:"install_id"`
	ExtensionID  string          `json:"extension_id"`
	PID          int             `json:"pid"`
	Port         int             `json:"port"`
	Token        string          `json:"token"`
	Started      int64           `json:"started"`
	LastUsed     int64           `json:"last_used"`
	Browser      BrowserInfo     `json:"browser"`
	DownloadRoots []DownloadRoot `json:"download_roots"`
}

// BrowserInfo identifies the browser that owns one profile entry.
type BrowserInfo struct {
	Name        string `json:"name"`
	Binary      string `json:"binary"`
	ExtensionID string `json:"extension_id"`
}

// DownloadRoot is the on-disk shape of one root entry.
type DownloadRoot struct {
	Key          string `json:"key"`
	Path         string `json:"path"`
	DisplayName  string `json:"display_name"`
	Removable    bool   `json:"removable"`
	LastStatOK   bool   `json:"last_stat_ok"`
	LastChecked  int64  `json:"last_checked"`
}

// Handlers wires the roots table and install id into the reload endpoint.
type Handlers struct {
	Roots         *roots.Table
	InstallID     string
	DiscoveryPath string

	group singleflight.Group
}

func New(table *roots.Table, installID, discoveryPath string) *Handlers {
	return &Handlers{Roots: table, InstallID: installID, DiscoveryPath: discoveryPath}
}

// Reload handles POST /api/read-rpc-info-from-disk.
func (h *Handlers) Reload(c *gin.Context) {
	_, err, _ := h.group.Do("reload", func() (interface{}, error) {
		return nil, h.reloadOnce()
	})
	if err != nil {
		logger.Warnf("reload: %v", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) reloadOnce() error {
	data, err := os.ReadFile(h.DiscoveryPath)
	if err != nil {
		return fmt.Errorf("reload: reading discovery file: %w", err)
	}

	var doc DiscoveryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("reload: parsing discovery file: %w", err)
	}

	var profile *ProfileEntry
	for i := range doc.Profiles {
		if doc.Profiles[i].InstallID == h.InstallID {
			profile = &doc.Profiles[i]
			break
		}
	}
	if profile == nil {
		return fmt.Errorf("reload: no profile for install id %q", h.InstallID)
	}

	next := make([]roots.Root, 0, len(profile.DownloadRoots))
	for _, r := range profile.DownloadRoots {
		next = append(next, roots.Root{Token: r.Key, Path: r.Path})
	}
	h.Roots.Replace(next)
	logger.Infof("reload: swapped in %d roots for install=%s", len(next), h.InstallID)
	return nil
}
