package discovery

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

var (
	urlRe      = regexp.MustCompile("(?i)\\b(?:https?|ftp)://[^\\s<>\"'`()\\[\\]{}]+")
	hostPathRe = regexp.MustCompile(`^(~(/|$)|\$\{?[A-Za-z_][A-Za-z0-9_]*\}?(/|$)|/[^/])`)
)

// IsURL reports whether target is an absolute http, https or ftp URL.
func IsURL(target string) bool {
	loc := urlRe.FindStringIndex(target)
	return loc != nil && loc[0] == 0
}

// IsHostPath reports paths that point outside the package: home relative,
// rooted at an environment variable, or absolute.
func IsHostPath(target string) bool {
	return !IsURL(target) && hostPathRe.MatchString(target)
}

func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?")
}

// RoleFor classifies a package file by its path and language.
func RoleFor(p string, lang contract.Language, manifest string) contract.Role {
	if p == manifest {
		return contract.RoleEntrypoint
	}
	base := strings.ToUpper(path.Base(p))
	switch {
	case strings.HasPrefix(base, "README"):
		return contract.RoleReadme
	case strings.HasPrefix(base, "LICENSE"), strings.HasPrefix(base, "LICENCE"), strings.HasPrefix(base, "COPYING"):
		return contract.RoleLicense
	}
	switch lang {
	case contract.LangBash, contract.LangPython, contract.LangJavaScript:
		return contract.RoleScript
	case contract.LangGoMod, contract.LangJSON, contract.LangYAML, contract.LangTOML:
		return contract.RoleConfig
	case contract.LangMarkdown, contract.LangText:
		return contract.RoleReference
	}
	return contract.RoleRegular
}

// fileIndex answers path lookups against the package listing.
type fileIndex struct {
	byPath map[string]contract.FileInfo
	paths  []string
}

func newFileIndex(files []contract.FileInfo) *fileIndex {
	idx := &fileIndex{byPath: make(map[string]contract.FileInfo, len(files))}
	for _, f := range files {
		p := contract.NormalizePath(f.Path)
		if p == "" {
			continue
		}
		if _, dup := idx.byPath[p]; dup {
			continue
		}
		f.Path = p
		idx.byPath[p] = f
		idx.paths = append(idx.paths, p)
	}
	sort.Strings(idx.paths)
	return idx
}

func (idx *fileIndex) get(p string) (contract.FileInfo, bool) {
	f, ok := idx.byPath[p]
	return f, ok
}

// resolve returns every package file a reference written in the file at
// from could mean. Relative paths are tried against the referencing
// directory first, then the package root. Globs and directories expand to
// the files they contain.
func (idx *fileIndex) resolve(from, target string) []string {
	target = strings.TrimSpace(target)
	if target == "" || IsURL(target) || strings.HasPrefix(target, "~") || strings.HasPrefix(target, "$") {
		return nil
	}
	target, _, _ = strings.Cut(target, "#")
	target, _, _ = strings.Cut(target, "?")
	if target == "" {
		return nil
	}

	var bases []string
	if dir := path.Dir(from); dir != "." && !strings.HasPrefix(target, "/") {
		bases = append(bases, contract.NormalizePath(path.Join(dir, target)))
	}
	bases = append(bases, contract.NormalizePath(target))

	for _, b := range bases {
		if b == "" {
			continue
		}
		if _, ok := idx.byPath[b]; ok {
			return []string{b}
		}
		if strings.ContainsAny(b, "*?[{") {
			var out []string
			for _, p := range idx.paths {
				if ok, err := doublestar.Match(b, p); err == nil && ok {
					out = append(out, p)
				}
			}
			if len(out) > 0 {
				return out
			}
			continue
		}
		prefix := strings.TrimSuffix(b, "/") + "/"
		var out []string
		for _, p := range idx.paths {
			if strings.HasPrefix(p, prefix) {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
