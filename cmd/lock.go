package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FeiyouG/skill-lab-sub000/local"
	"github.com/FeiyouG/skill-lab-sub000/parser"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

var lockCmd = &cobra.Command{
	Use:   "lock [dir]",
	Short: "Record file checksums so later scans report drift",
	Long: `Write ` + trust.LockName + ` into the skill directory. Subsequent scans compare
every file against it and warn about changed, added or removed files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLock,
}

func runLock(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := local.NewDirRepository(dir)
	if err != nil {
		return err
	}
	raw, err := repo.ReadManifest(ctx)
	if err != nil {
		return err
	}
	m, err := parser.ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	lock, err := trust.GenerateManifest(ctx, repo, m.Name)
	if err != nil {
		return fmt.Errorf("generating lock: %w", err)
	}
	data, err := trust.MarshalManifest(lock)
	if err != nil {
		return fmt.Errorf("encoding lock: %w", err)
	}
	path := filepath.Join(dir, trust.LockName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d files)\n", path, len(lock.Checksums))
	return nil
}
