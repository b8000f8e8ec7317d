package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/discovery"
	"github.com/FeiyouG/skill-lab-sub000/extract"
	"github.com/FeiyouG/skill-lab-sub000/matcher"
	"github.com/FeiyouG/skill-lab-sub000/parser"
	"github.com/FeiyouG/skill-lab-sub000/policy"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

// Analyze runs every stage over repo. skillID and versionID default to the
// manifest's name and version when empty. A missing or invalid manifest is
// fatal; unreadable or unsupported files are skipped and reported.
func (a *Analyzer) Analyze(ctx context.Context, repo contract.Repository, skillID, versionID string) (*contract.Result, error) {
	start := a.now()

	raw, err := repo.ReadManifest(ctx)
	if err != nil {
		if errors.Is(err, contract.ErrManifestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", contract.ErrManifestNotFound, err)
	}
	m, err := parser.ParseManifest(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", contract.ManifestName, err)
	}

	files, err := repo.ListFiles(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	if skillID == "" {
		skillID = m.Name
	}
	if versionID == "" {
		versionID = m.Version
	}
	log := a.log.With(zap.String("skill", skillID))
	log.Info("analysis started", zap.Int("files", len(files)))

	limits := a.cfg.Scan.Limits()
	st := &contract.AnalyzerState{
		SkillID:        skillID,
		SkillVersionID: versionID,
		Files:          a.excluded(files, log),
		Metadata: contract.StateMetadata{
			Limits:           limits,
			ManifestPath:     contract.ManifestName,
			ManifestChecksum: trust.ComputeChecksum(raw),
		},
	}

	a.verifyLock(ctx, repo, st, log)

	st = extract.Seed(st, m, contract.ManifestName)

	st, err = discovery.Discover(ctx, repo, st, discovery.Options{Limits: limits, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("discovering references: %w", err)
	}
	st = discovery.Filter(st, limits, log)

	ev := policy.New(a.cfg.Policy)
	st, err = extract.Extract(ctx, repo, st, extract.Options{Matcher: matcher.New(a.cache), Logger: log, Policy: ev})
	if err != nil {
		return nil, fmt.Errorf("extracting permissions: %w", err)
	}

	st = Infer(st, ev, log)
	st = Synthesize(st)

	score, breakdown := Score(st.Risks, st.Permissions, a.cfg.Scoring)
	level := a.cfg.Scoring.Level(score)

	res := &contract.Result{
		SkillID:        st.SkillID,
		SkillVersionID: st.SkillVersionID,
		Permissions:    nonNil(st.Permissions),
		Risks:          nonNil(st.Risks),
		Score:          score,
		RiskLevel:      level,
		Breakdown:      breakdown,
		Warnings:       nonNil(st.Warnings),
		Metadata: contract.ResultMetadata{
			ScannedFiles:     nonNil(st.Metadata.ScannedFiles),
			SkippedFiles:     nonNil(st.Metadata.SkippedFiles),
			RulesUsed:        nonNil(st.Metadata.RulesUsed),
			Limits:           st.Metadata.Limits,
			ManifestChecksum: st.Metadata.ManifestChecksum,
			DurationMS:       a.now().Sub(start).Milliseconds(),
		},
	}
	res.Summary = Summarize(res)

	log.Info("analysis complete",
		zap.Int("permissions", len(res.Permissions)),
		zap.Int("risks", len(res.Risks)),
		zap.Int("score", res.Score),
		zap.String("level", string(res.RiskLevel)))
	return res, nil
}

// verifyLock compares the package against its lock manifest, when one is
// present, and records every drift as a warning. An unreadable lock is a
// warning too.
func (a *Analyzer) verifyLock(ctx context.Context, repo contract.Repository, st *contract.AnalyzerState, log *zap.Logger) {
	lock, err := trust.ReadLock(ctx, repo)
	if err != nil {
		log.Warn("lock manifest unusable", zap.Error(err))
		st.Warn("integrity: " + err.Error())
		return
	}
	if lock == nil {
		return
	}
	for _, v := range trust.VerifyManifest(ctx, repo, lock) {
		log.Debug("integrity violation", zap.String("path", v.Path), zap.String("reason", v.Reason))
		st.Warn(v.String())
	}
}

// excluded drops files matching the configured exclude globs. The manifest
// is always kept.
func (a *Analyzer) excluded(files []contract.FileInfo, log *zap.Logger) []contract.FileInfo {
	if len(a.cfg.Scan.Exclude) == 0 {
		return files
	}
	out := make([]contract.FileInfo, 0, len(files))
	for _, f := range files {
		if f.Path != contract.ManifestName && matchesAny(a.cfg.Scan.Exclude, f.Path) {
			log.Debug("file excluded", zap.String("path", f.Path))
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, p); err == nil && ok {
			return true
		}
	}
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
