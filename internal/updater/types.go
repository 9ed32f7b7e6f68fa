package updater

import "time"

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/glcapture"

// UpdateInfo describes the latest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Options contains configuration for the updater.
type Options struct {
	Repository string // GitHub repo slug, DefaultRepository when empty
	Prerelease bool   // Whether to include prereleases
	// BackupDir holds the previous binary. Defaults to ~/.cache/glcapture/backup.
	BackupDir string
	// Executable is the binary to replace. Defaults to the running one.
	Executable string
}
