package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/analyzer"
	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/local"
	"github.com/FeiyouG/skill-lab-sub000/remote"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Analyze a single skill package",
	Long: `Analyze the skill whose SKILL.md lives in dir (default "."). With --ref the
directory is treated as a git repository and analyzed at that revision; with
--url a .tar.gz archive is downloaded and analyzed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var (
	scanRef       string
	scanURL       string
	scanChecksum  string
	scanSubdir    string
	scanFailOn    string
	scanWatch     bool
	scanSkillID   string
	scanVersionID string
)

const watchDebounce = 300 * time.Millisecond

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanRef, "ref", "", "git revision to analyze (dir must be a git repository or URL)")
	f.StringVar(&scanURL, "url", "", "analyze a .tar.gz archive downloaded from this URL")
	f.StringVar(&scanChecksum, "checksum", "", "expected sha256:<hex> checksum of the --url archive")
	f.StringVar(&scanSubdir, "subdir", "", "skill directory inside a --ref or --url source")
	f.StringVar(&scanFailOn, "fail-on", "", "exit with status 2 when the risk level is at or above this level")
	f.BoolVarP(&scanWatch, "watch", "w", false, "re-run the analysis whenever a file in dir changes")
	f.StringVar(&scanSkillID, "skill-id", "", "skill id to report (default: manifest name)")
	f.StringVar(&scanVersionID, "version-id", "", "skill version to report (default: manifest version)")
}

func runScan(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if scanWatch && (scanRef != "" || scanURL != "") {
		return errors.New("--watch only works on a local directory")
	}
	if scanRef != "" && scanURL != "" {
		return errors.New("--ref and --url are mutually exclusive")
	}
	failAt, err := parseLevel(scanFailOn)
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	a := analyzer.New(analyzer.WithConfig(cfg), analyzer.WithLogger(log))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scanOnce := func(ctx context.Context) (*contract.Result, error) {
		res, err := analyzeSource(ctx, a, dir, log)
		if err != nil {
			return nil, err
		}
		w, closeOut, err := openWriter(cmd)
		if err != nil {
			return nil, err
		}
		if err := w.Result(res); err != nil {
			_ = closeOut()
			return nil, err
		}
		return res, closeOut()
	}

	if scanWatch {
		return watchDir(ctx, dir, watchDebounce, log, func() {
			if _, err := scanOnce(ctx); err != nil {
				log.Error("scan failed", zap.Error(err))
			}
		})
	}

	res, err := scanOnce(ctx)
	if err != nil {
		return err
	}
	if failAt != "" && analyzer.AtLeast(res.RiskLevel, failAt) {
		return fmt.Errorf("%w: %s is at or above %s", ErrThresholdExceeded, res.RiskLevel, failAt)
	}
	return nil
}

// analyzeSource resolves the skill source from the scan flags and runs the
// analyzer over it. Temporary checkouts are removed before returning.
func analyzeSource(ctx context.Context, a *analyzer.Analyzer, dir string, log *zap.Logger) (*contract.Result, error) {
	opts := []remote.Option{
		remote.WithLogger(log),
		remote.WithSubdir(scanSubdir),
	}

	var repo contract.Repository
	switch {
	case scanURL != "":
		co, err := remote.FetchArchive(ctx, scanURL, append(opts, remote.WithChecksum(scanChecksum))...)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", scanURL, err)
		}
		defer co.Cleanup()
		repo = co.Repo
	case scanRef != "":
		co, err := remote.CheckoutGit(ctx, dir, scanRef, opts...)
		if err != nil {
			return nil, fmt.Errorf("checking out %s at %s: %w", dir, scanRef, err)
		}
		defer co.Cleanup()
		log.Info("analyzing git revision", zap.String("commit", co.Revision))
		repo = co.Repo
	default:
		r, err := local.NewDirRepository(dir)
		if err != nil {
			return nil, err
		}
		repo = r
	}

	return a.Analyze(ctx, repo, scanSkillID, scanVersionID)
}
