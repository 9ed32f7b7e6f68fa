package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/glcapture/internal/systemd"
	"github.com/smazurov/glcapture/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var (
		checkOnly  bool
		rollback   bool
		prerelease bool
		repository string
		restart    string
		system     bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update glcapture to the latest release",
		Long: `Downloads the latest GitHub release and replaces the running binary. ` +
			`The previous binary is kept for --rollback. With --restart the given ` +
			`systemd unit is restarted once the binary changed.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			u, err := updater.New(updater.Options{
				Repository: repository,
				Prerelease: prerelease,
			})
			if err != nil {
				return err
			}
			changed, err := runUpdate(c.Context(), c.OutOrStdout(), u, checkOnly, rollback)
			if err != nil || !changed || restart == "" {
				return err
			}
			return restartUnit(c.Context(), c.OutOrStdout(), restart, system)
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary replaced by the last update")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Include prereleases")
	cmd.Flags().StringVar(&repository, "repo", updater.DefaultRepository, "GitHub repository slug")
	cmd.Flags().StringVar(&restart, "restart", "", "systemd unit to restart after the binary changed")
	cmd.Flags().BoolVar(&system, "system", false, "Use the system manager instead of the user manager for --restart")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	return cmd
}

type selfUpdater interface {
	Check(ctx context.Context) (*updater.UpdateInfo, error)
	Apply(ctx context.Context) (*updater.UpdateInfo, error)
	Rollback() (string, error)
}

// runUpdate reports whether the executable changed.
func runUpdate(ctx context.Context, w io.Writer, u selfUpdater, checkOnly, rollback bool) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case rollback:
		restored, err := u.Rollback()
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "restored %s\n", restored)
		return true, nil

	case checkOnly:
		info, err := u.Check(ctx)
		if err != nil {
			return false, err
		}
		if info.UpdateAvailable {
			fmt.Fprintf(w, "update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintf(w, "  %s\n", info.ReleaseURL)
			}
		} else {
			fmt.Fprintf(w, "up to date (%s)\n", info.CurrentVersion)
		}
		return false, nil
	}

	info, err := u.Apply(ctx)
	if updater.HasCode(err, updater.ErrCodeNoUpdate) {
		fmt.Fprintf(w, "up to date (%s)\n", info.CurrentVersion)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fmt.Fprintf(w, "updated %s -> %s\n", info.CurrentVersion, info.LatestVersion)
	return true, nil
}

func restartUnit(ctx context.Context, w io.Writer, unit string, system bool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	m, err := systemd.NewManager(ctx, system)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Restart(ctx, unit); err != nil {
		return err
	}
	state, err := m.ActiveState(ctx, unit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "restarted %s (%s)\n", unit, state)
	return nil
}
