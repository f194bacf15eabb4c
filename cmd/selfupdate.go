package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const githubRepoSlug = "deployctl/deployctl"

// release is the part of a published release the update flow needs.
type release interface {
	Version() string
	LessOrEqual(other string) bool
	Published() time.Time
}

type githubRelease struct {
	*selfupdate.Release
}

func (r githubRelease) Published() time.Time {
	return r.PublishedAt
}

// Seams over go-selfupdate, replaced in tests.
var (
	detectLatestRelease = func(ctx context.Context, slug string) (release, bool, error) {
		latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(slug))
		if err != nil || !found {
			return nil, found, err
		}
		return githubRelease{latest}, true, nil
	}

	applyRelease = func(ctx context.Context, rel release, exe string) error {
		gh, ok := rel.(githubRelease)
		if !ok {
			return fmt.Errorf("release %s has no downloadable asset", rel.Version())
		}
		return selfupdate.UpdateTo(ctx, gh.AssetURL, gh.AssetName, exe)
	}

	executablePath = selfupdate.ExecutablePath
)

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update deployctl to the latest version",
		Long: `Checks for the latest release of deployctl on GitHub and
updates the current binary if a newer version is found.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	currentVersion := rootCmd.Version
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := context.Background()
	var out io.Writer = os.Stdout
	if cmd != nil {
		out = cmd.OutOrStdout()
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
	}

	fmt.Fprintf(out, "Current version: %s\n", currentVersion)
	fmt.Fprintln(out, "Checking for updates...")

	latest, found, err := detectLatestRelease(ctx, githubRepoSlug)
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest release for %s could not be found", githubRepoSlug)
	}

	if latest.LessOrEqual(currentVersion) {
		fmt.Fprintf(out, "Current version (%s) is the latest.\n", currentVersion)
		return nil
	}

	fmt.Fprintf(out, "Found newer version: %s (published at %s)\n", latest.Version(), latest.Published())

	exe, err := executablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintf(out, "Updating %s to version %s...\n", exe, latest.Version())
	if err := applyRelease(ctx, latest, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
