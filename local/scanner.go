package local

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

// SkillDir is a skill package found under a collection root.
type SkillDir struct {
	Dir      string
	Checksum string
}

// Scan finds the immediate subdirectories of fsys that hold a SKILL.md.
// Hidden directories and those starting with "_" are skipped.
func Scan(fsys fs.FS) ([]SkillDir, error) {
	matches, err := doublestar.Glob(fsys, "*/"+contract.ManifestName)
	if err != nil {
		return nil, fmt.Errorf("scanning skills: %w", err)
	}

	var skills []SkillDir
	for _, m := range matches {
		dir := path.Dir(m)
		if strings.HasPrefix(dir, ".") || strings.HasPrefix(dir, "_") {
			continue
		}
		raw, err := fs.ReadFile(fsys, m)
		if err != nil {
			continue
		}
		skills = append(skills, SkillDir{Dir: dir, Checksum: trust.ComputeChecksum(raw)})
	}
	return skills, nil
}

// Sub returns a Repository for one skill directory of fsys.
func Sub(fsys fs.FS, dir string) (*Repository, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("opening skill %s: %w", dir, err)
	}
	return NewRepository(sub), nil
}
