package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FeiyouG/skill-lab-sub000/analyzer"
	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/local"
	"github.com/FeiyouG/skill-lab-sub000/matcher"
)

var auditCmd = &cobra.Command{
	Use:   "audit <dir>",
	Short: "Analyze every skill directory under dir",
	Long: `Analyze every immediate subdirectory of dir that holds a SKILL.md. Skills
are analyzed concurrently and share one parse cache. The aggregate level is
the worst level of any skill.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

var (
	auditFailOn string
	auditJobs   int
)

func init() {
	auditCmd.Flags().StringVar(&auditFailOn, "fail-on", "", "exit with status 2 when any skill fails or reaches this level")
	auditCmd.Flags().IntVarP(&auditJobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of skills analyzed in parallel")
}

func runAudit(cmd *cobra.Command, args []string) error {
	dir := args[0]
	failAt, err := parseLevel(auditFailOn)
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cache := matcher.NewCache()
	a := analyzer.New(
		analyzer.WithConfig(cfg),
		analyzer.WithLogger(log),
		analyzer.WithCache(cache),
	)
	threshold := failAt
	if threshold == "" {
		threshold = contract.LevelAvoid
	}
	rep, err := auditDir(ctx, a, dir, auditJobs, threshold, log)
	if err != nil {
		return err
	}
	hits, misses := cache.Stats()
	log.Debug("parse cache", zap.Int("hits", hits), zap.Int("misses", misses))

	w, closeOut, err := openWriter(cmd)
	if err != nil {
		return err
	}
	if err := w.Audit(rep); err != nil {
		_ = closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}

	if failAt != "" && !rep.Summary.Passed {
		return fmt.Errorf("%w: aggregate level %s, %d failed", ErrThresholdExceeded, rep.AggregateLevel, rep.Summary.Failed)
	}
	return nil
}

// auditDir finds the skill directories under dir and analyzes them with at
// most jobs runs in flight.
func auditDir(ctx context.Context, a *analyzer.Analyzer, dir string, jobs int, failAt contract.RiskLevel, log *zap.Logger) (*analyzer.AuditReport, error) {
	fsys := os.DirFS(dir)
	skills, err := local.Scan(fsys)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	log.Info("audit started", zap.String("dir", dir), zap.Int("skills", len(skills)))

	entries := make([]analyzer.AuditEntry, len(skills))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, s := range skills {
		g.Go(func() error {
			repo, err := local.Sub(fsys, s.Dir)
			if err != nil {
				entries[i] = analyzer.AuditEntry{Path: s.Dir, Error: err.Error()}
				return nil
			}
			entries[i] = a.Audit(gctx, analyzer.Target{Path: s.Dir, Repo: repo})
			if entries[i].Error != "" {
				log.Warn("skill analysis failed", zap.String("skill", s.Dir), zap.String("error", entries[i].Error))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return analyzer.NewAuditReport(entries, time.Now(), failAt), nil
}
