// Package extract runs the rule registry over the scan queue and turns
// matches into findings and permissions.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/matcher"
	"github.com/FeiyouG/skill-lab-sub000/parser"
	"github.com/FeiyouG/skill-lab-sub000/policy"
	"github.com/FeiyouG/skill-lab-sub000/rules"
)

// Options configures an extraction run.
type Options struct {
	Matcher *matcher.Matcher
	Logger  *zap.Logger
	// Policy, when set, silences the not-scanned warning for imports the
	// import allow list already vouches for.
	Policy *policy.Evaluator
}

type extractor struct {
	ctx    context.Context
	repo   contract.Repository
	m      *matcher.Matcher
	log    *zap.Logger
	policy *policy.Evaluator
	st     *contract.AnalyzerState
	queued map[string]bool
	docs   map[string][]parser.Block
}

// scanUnit is one region of text scanned with one language's rules.
type scanUnit struct {
	file    string
	lang    contract.Language
	text    string
	start   int // document line of the first line of text
	kind    contract.ReferenceKind
	parent  *contract.Reference
	inline  bool
	context string
}

// Extract scans every local entry of the scan queue and records findings
// and detected permissions. External entries are not read; library
// references become inferred dependency permissions. The input state is
// not modified.
func Extract(ctx context.Context, repo contract.Repository, in *contract.AnalyzerState, opts Options) (*contract.AnalyzerState, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Matcher
	if m == nil {
		m = matcher.New(nil)
	}

	e := &extractor{
		ctx:    ctx,
		repo:   repo,
		m:      m,
		log:    log,
		policy: opts.Policy,
		st:     in.Clone(),
		queued: make(map[string]bool, len(in.ScanQueue)),
		docs:   make(map[string][]parser.Block),
	}
	for _, ref := range in.ScanQueue {
		e.queued[ref.Path] = true
	}

	for _, ref := range in.ScanQueue {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ref.SourceType == contract.SourceExternal {
			e.external(ref)
			continue
		}
		if err := e.local(ref); err != nil {
			return nil, err
		}
	}
	return e.st, nil
}

// external records an unscanned reference and, for dependencies, the
// permission it implies.
func (e *extractor) external(ref contract.FileReference) {
	lang := ref.Language
	if lang == "" {
		lang = contract.LangBash
	}
	e.st.Skip(ref.Path, contract.SkipExternal)
	if !e.allowedImport(ref, lang) {
		e.st.Warn(fmt.Sprintf("external reference %s was not scanned", ref.Path))
	}

	var perm string
	switch {
	case ref.Method == contract.MethodSource:
		perm = "source"
	case ref.Role == contract.RoleLibrary:
		perm = "import"
	default:
		return
	}
	via := contract.Reference{File: ref.Path, Kind: contract.RefScript}
	if ref.Via != nil {
		via = *ref.Via
	}
	tool := policy.Language(lang)
	meta := map[string]string{"language": string(lang)}
	e.st.Permissions = append(e.st.Permissions,
		NewPermission(tool, contract.ScopeDep, perm, []string{ref.Path}, meta, contract.SourceInferred, via))
}

func (e *extractor) allowedImport(ref contract.FileReference, lang contract.Language) bool {
	if e.policy == nil || ref.Role != contract.RoleLibrary || ref.Method == contract.MethodSource {
		return false
	}
	return e.policy.Import(lang, ref.Path) == policy.DecisionAllowed
}

func (e *extractor) local(ref contract.FileReference) error {
	if parent, start, end, ok := contract.ParseBlockPath(ref.Path); ok {
		return e.codeBlock(ref, parent, start, end)
	}

	lang := ref.FileType
	if !rules.HasRules(lang) && !lang.IsDocument() && lang != contract.LangUnknown {
		e.unsupported(ref.Path, lang)
		return nil
	}

	content, err := e.repo.ReadText(e.ctx, ref.Path)
	if err != nil {
		if ctxErr := e.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.log.Debug("unreadable file", zap.String("path", ref.Path), zap.Error(err))
		e.st.Skip(ref.Path, contract.SkipUnreadable)
		return nil
	}
	if lang == contract.LangUnknown {
		lang = contract.DetectLanguageContent(ref.Path, content)
		if !rules.HasRules(lang) && !lang.IsDocument() {
			e.unsupported(ref.Path, lang)
			return nil
		}
	}

	e.st.MarkScanned(ref.Path)
	if !lang.IsDocument() {
		e.scan(scanUnit{
			file:   ref.Path,
			lang:   lang,
			text:   content,
			start:  1,
			kind:   contract.RefScript,
			parent: ref.Via,
		})
		return nil
	}

	blocks := parser.ExtractBlocks(content, lang)
	e.docs[ref.Path] = blocks
	for _, b := range blocks {
		u := scanUnit{
			file:   ref.Path,
			lang:   b.Language,
			text:   b.Text,
			start:  b.StartLine,
			parent: ref.Via,
		}
		switch b.Kind {
		case parser.BlockContent:
			u.kind = contract.RefContent
		case parser.BlockFenced:
			if !rules.HasRules(b.Language) || e.queued[contract.BlockPath(ref.Path, b.StartLine, b.EndLine)] {
				continue
			}
			u.kind = contract.RefScript
		case parser.BlockInline:
			if !plausibleInline(b.Text) || bareMention(b.Text, b.Context) {
				continue
			}
			u.kind = contract.RefInline
			u.inline = true
			u.context = b.Context
		}
		e.scan(u)
	}
	return nil
}

// codeBlock scans a fenced block queued on its own. Findings point at the
// parent document.
func (e *extractor) codeBlock(ref contract.FileReference, parent string, start, end int) error {
	blocks, ok := e.docs[parent]
	if !ok {
		content, err := e.repo.ReadText(e.ctx, parent)
		if err != nil {
			if ctxErr := e.ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.log.Debug("unreadable code block parent", zap.String("path", ref.Path), zap.Error(err))
			e.st.Skip(ref.Path, contract.SkipUnreadable)
			return nil
		}
		blocks = parser.ExtractBlocks(content, contract.DetectLanguageContent(parent, content))
		e.docs[parent] = blocks
	}
	for _, b := range blocks {
		if b.Kind != parser.BlockFenced || b.StartLine != start || b.EndLine != end {
			continue
		}
		if !rules.HasRules(b.Language) {
			e.unsupported(ref.Path, b.Language)
			return nil
		}
		e.st.MarkScanned(ref.Path)
		var via *contract.Reference
		if ref.Via != nil {
			via = ref.Via.Parent
		}
		e.scan(scanUnit{
			file:   parent,
			lang:   b.Language,
			text:   b.Text,
			start:  b.StartLine,
			kind:   contract.RefScript,
			parent: via,
		})
		return nil
	}
	e.log.Debug("code block not found in parent", zap.String("path", ref.Path))
	e.st.Skip(ref.Path, contract.SkipUnreadable)
	return nil
}

func (e *extractor) unsupported(p string, lang contract.Language) {
	e.log.Debug("unsupported file type", zap.String("path", p), zap.String("language", string(lang)))
	e.st.Skip(p, contract.SkipUnsupported)
}

type span struct {
	start, end int
	text       string
}

// scan runs every rule for the unit's language. A failing rule is reported
// as a warning and the remaining rules still run.
func (e *extractor) scan(u scanUnit) {
	all := rules.ForLanguage(u.lang)
	if len(all) == 0 {
		return
	}

	specific := make(map[span]bool)
	var generic []rules.Rule
	for _, r := range all {
		if r.Generic() {
			generic = append(generic, r)
			continue
		}
		for _, m := range e.run(r, u) {
			specific[span{m.StartLine, m.EndLine, m.Text}] = true
			e.record(r, u, m)
		}
	}

	for _, r := range generic {
		if u.inline && len(specific) > 0 {
			break
		}
		for _, m := range e.run(r, u) {
			if specific[span{m.StartLine, m.EndLine, m.Text}] {
				continue
			}
			ctxLine := ""
			if u.inline {
				ctxLine = u.context
			}
			if !commandLike(m.Text, ctxLine) {
				continue
			}
			e.record(r, u, m)
		}
	}
}

func (e *extractor) run(r rules.Rule, u scanUnit) []matcher.Match {
	matches, err := e.m.Match(e.ctx, u.lang, u.text, r.Query())
	if err != nil {
		e.log.Debug("rule failed", zap.String("rule", r.ID), zap.String("file", u.file), zap.Error(err))
		e.st.Warn(fmt.Sprintf("rule %s failed on %s: %v", r.ID, u.file, err))
		return nil
	}
	return matches
}

func (e *extractor) record(r rules.Rule, u scanUnit, m matcher.Match) {
	f := contract.Finding{
		RuleID: r.ID,
		Reference: contract.Reference{
			File:    u.file,
			Line:    m.StartLine + u.start - 1,
			LineEnd: m.EndLine + u.start - 1,
			Kind:    u.kind,
			Parent:  u.parent,
		},
	}
	if f.Reference.LineEnd == f.Reference.Line {
		f.Reference.LineEnd = 0
	}
	names := make([]string, 0, len(m.Captures))
	for name := range m.Captures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := r.OutputKey(name)
		if v := strings.TrimSpace(m.Captures[name]); v != "" && f.Metadata[key] == "" {
			if f.Metadata == nil {
				f.Metadata = make(map[string]string)
			}
			f.Metadata[key] = v
		}
	}

	if r.Permission != nil {
		p := fromFinding(r, f, m.Captures, m.Text)
		f.PermissionID = p.ID
		e.st.Permissions = append(e.st.Permissions, p)
	}
	e.st.Findings = append(e.st.Findings, f)
	e.st.UseRule(r.ID)
}
