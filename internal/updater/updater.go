// Package updater replaces the glcapture binary with the latest GitHub
// release, keeping one backup for rollback.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/internal/version"
)

// Releases finds and installs releases. *selfupdate.Updater implements it.
type Releases interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Updater checks for and applies releases.
type Updater struct {
	releases Releases
	repo     selfupdate.Repository
	exe      string
	backups  *backupManager
	logger   *slog.Logger
}

// New creates an updater backed by GitHub releases.
func New(opts Options) (*Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}

	releases, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	return newUpdater(releases, opts)
}

func newUpdater(releases Releases, opts Options) (*Updater, error) {
	logger := logging.GetLogger("updater")

	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = selfupdate.ExecutablePath(); err != nil {
			return nil, newError(ErrCodeDisabled, "cannot locate executable", err)
		}
	}
	if ok, reason := checkWritePermission(exe); !ok {
		return nil, newError(ErrCodeDisabled, reason, nil)
	}

	dir := opts.BackupDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "glcapture", "backup")
	}
	backups, err := newBackupManager(dir, logger)
	if err != nil {
		return nil, err
	}

	return &Updater{
		releases: releases,
		repo:     selfupdate.ParseSlug(opts.Repository),
		exe:      exe,
		backups:  backups,
		logger:   logger,
	}, nil
}

// checkWritePermission tries to create a file next to exe.
func checkWritePermission(exe string) (bool, string) {
	dir := filepath.Dir(exe)
	tmp := filepath.Join(dir, ".glcapture.update.test")
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(tmp)
	return true, ""
}

// Check queries the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (*UpdateInfo, error) {
	_, info, err := u.latest(ctx)
	return info, err
}

func (u *Updater) latest(ctx context.Context) (*selfupdate.Release, *UpdateInfo, error) {
	current := version.Version

	release, found, err := u.releases.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return nil, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	info := &UpdateInfo{
		CurrentVersion: current,
		LatestVersion:  release.Version(),
		ReleaseNotes:   release.ReleaseNotes,
		ReleaseURL:     release.URL,
		PublishedAt:    release.PublishedAt,
		AssetSize:      release.AssetByteSize,
		// dev builds are always outdated
		UpdateAvailable: current == "dev" || release.GreaterThan(current),
	}
	return release, info, nil
}

// Apply installs the latest release over the executable. The previous
// binary is backed up first and restored if installation fails. The new
// version runs after the service restarts.
func (u *Updater) Apply(ctx context.Context) (*UpdateInfo, error) {
	release, info, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running "+info.CurrentVersion, nil)
	}

	if err := u.backups.createBackup(u.exe); err != nil {
		return info, newError(ErrCodeBackupFailed, "failed to create backup", err)
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.releases.UpdateTo(ctx, release, u.exe); err != nil {
		if restoreErr := u.backups.restore(); restoreErr != nil {
			u.logger.Error("Automatic rollback failed", "error", restoreErr)
		} else {
			u.logger.Info("Automatic rollback completed")
		}
		return info, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the binary saved by the last Apply.
func (u *Updater) Rollback() (string, error) {
	if !u.backups.hasBackup() {
		return "", newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backups.restore(); err != nil {
		return "", newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return u.backups.backupVersion(), nil
}

// BackupVersion returns the version of the saved binary, empty if none.
func (u *Updater) BackupVersion() string {
	return u.backups.backupVersion()
}
