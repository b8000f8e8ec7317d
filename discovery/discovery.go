// Package discovery walks the reference graph of a skill package and orders
// what it finds into a bounded scan queue.
package discovery

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/parser"
	"github.com/FeiyouG/skill-lab-sub000/rules"
)

// Options configures a discovery run.
type Options struct {
	Limits contract.ScanLimits
	Logger *zap.Logger
}

type item struct {
	path  string
	depth int
	via   *contract.Reference
}

type walker struct {
	ctx    context.Context
	repo   contract.Repository
	idx    *fileIndex
	limits contract.ScanLimits
	log    *zap.Logger
	st     *contract.AnalyzerState

	manifest  string
	queue     []item
	processed map[string]bool
	starts    map[string]bool
	emitted   map[string]int
}

// Discover walks the package breadth-first from the manifest and records
// every reachable artifact in Discovered. Package files the manifest never
// reaches are walked afterwards as additional start paths at depth 1.
// The input state is not modified.
func Discover(ctx context.Context, repo contract.Repository, in *contract.AnalyzerState, opts Options) (*contract.AnalyzerState, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	manifest := in.Metadata.ManifestPath
	if manifest == "" {
		manifest = contract.ManifestName
	}

	w := &walker{
		ctx:       ctx,
		repo:      repo,
		idx:       newFileIndex(in.Files),
		limits:    opts.Limits,
		log:       log,
		st:        in.Clone(),
		manifest:  contract.NormalizePath(manifest),
		processed: make(map[string]bool),
		starts:    make(map[string]bool),
		emitted:   make(map[string]int),
	}
	w.st.Discovered = nil

	w.start(w.manifest, 0, contract.MethodManifest)
	if err := w.drain(); err != nil {
		return nil, err
	}
	for _, p := range w.idx.paths {
		if _, seen := w.emitted[p]; !seen {
			w.start(p, 1, contract.MethodManifest)
		}
	}
	if err := w.drain(); err != nil {
		return nil, err
	}

	log.Debug("discovery complete",
		zap.Int("discovered", len(w.st.Discovered)),
		zap.Int("processed", len(w.processed)))
	return w.st, nil
}

func (w *walker) start(p string, depth int, method contract.DiscoveryMethod) {
	if depth > w.limits.MaxScanDepth {
		return
	}
	if _, ok := w.idx.get(p); !ok && p != w.manifest {
		return
	}
	w.starts[p] = true
	w.emitLocal(p, depth, method, nil)
	w.queue = append(w.queue, item{path: p, depth: depth})
}

func (w *walker) drain() error {
	for len(w.queue) > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		it := w.queue[0]
		w.queue = w.queue[1:]
		if w.processed[it.path] {
			continue
		}
		w.processed[it.path] = true
		w.process(it)
	}
	return nil
}

func (w *walker) process(it item) {
	ref := w.st.Discovered[w.emitted[it.path]]
	if ref.Binary || ref.FileType == contract.LangBinary {
		return
	}
	if w.limits.MaxFileSize > 0 && ref.Size > w.limits.MaxFileSize {
		return
	}

	content, err := w.repo.ReadText(w.ctx, it.path)
	if err != nil {
		w.log.Debug("unreadable file", zap.String("path", it.path), zap.Error(err))
		w.st.Skip(it.path, contract.SkipUnreadable)
		return
	}

	lang := ref.FileType
	if lang == contract.LangUnknown || lang == contract.LangText {
		if detected := contract.DetectLanguageContent(it.path, content); detected != lang {
			lang = detected
			w.st.Discovered[w.emitted[it.path]].FileType = lang
			w.st.Discovered[w.emitted[it.path]].Role = RoleFor(it.path, lang, w.manifest)
		}
	}

	if !lang.IsDocument() {
		w.expand(it, parser.Block{
			Kind:      parser.BlockContent,
			Language:  lang,
			Text:      content,
			StartLine: 1,
			EndLine:   strings.Count(content, "\n") + 1,
		})
		return
	}

	for _, b := range parser.ExtractBlocks(content, lang) {
		w.expand(it, b)
		if b.Kind == parser.BlockFenced {
			w.emitBlock(it, b)
		}
	}
}

// expand runs the block's extractor and classifies each candidate.
func (w *walker) expand(it item, b parser.Block) {
	var cands []candidate
	if b.Kind == parser.BlockInline {
		cands = inlineRefs(b.Text)
	} else if ex := extractorFor(b.Language); ex != nil {
		cands = ex(b.Text)
	}

	kind := contract.RefScript
	switch b.Kind {
	case parser.BlockInline:
		kind = contract.RefInline
	case parser.BlockContent:
		if b.Language.IsDocument() {
			kind = contract.RefContent
		}
	}

	for _, c := range cands {
		via := &contract.Reference{
			File:   it.path,
			Line:   b.Rebase(c.Line),
			Kind:   kind,
			Parent: it.via,
		}
		w.classify(it, c, b.Language, via)
	}
}

func (w *walker) classify(it item, c candidate, lang contract.Language, via *contract.Reference) {
	paths := c.Paths
	if len(paths) == 0 {
		paths = []string{c.Target}
	}
	for _, p := range paths {
		if local := w.idx.resolve(it.path, p); len(local) > 0 {
			for _, lp := range local {
				w.reach(lp, it.depth+1, c.Method, via)
			}
			return
		}
	}

	switch {
	case IsHostPath(c.Target):
		w.emitExternal(c.Target, contract.RoleHostFS, it.depth+1, c.Method, lang, via)
	case IsURL(c.Target) || c.Method == contract.MethodMarkdownLink:
		w.emitExternal(c.Target, contract.RoleRegular, it.depth+1, c.Method, lang, via)
	case c.Method == contract.MethodImport || c.Method == contract.MethodSource:
		w.emitExternal(c.Target, contract.RoleLibrary, it.depth+1, c.Method, lang, via)
	default:
		w.log.Debug("discarded reference",
			zap.String("target", c.Target),
			zap.String("method", string(c.Method)),
			zap.String("file", it.path))
	}
}

// reach records a local file found through a reference and queues it.
func (w *walker) reach(p string, depth int, method contract.DiscoveryMethod, via *contract.Reference) {
	if w.starts[p] || w.processed[p] {
		return
	}
	if depth > w.limits.MaxScanDepth {
		w.log.Debug("depth limit reached", zap.String("path", p), zap.Int("depth", depth))
		return
	}
	if _, seen := w.emitted[p]; seen {
		return
	}
	w.emitLocal(p, depth, method, via)
	w.queue = append(w.queue, item{path: p, depth: depth, via: via})
}

func (w *walker) emitLocal(p string, depth int, method contract.DiscoveryMethod, via *contract.Reference) {
	if _, seen := w.emitted[p]; seen {
		return
	}
	info, _ := w.idx.get(p)
	lang := contract.DetectLanguage(p)
	binary := info.ContentType == contract.ContentBinary
	if binary {
		lang = contract.LangBinary
	}
	w.emitted[p] = len(w.st.Discovered)
	w.st.Discovered = append(w.st.Discovered, contract.FileReference{
		Path:       p,
		SourceType: contract.SourceLocal,
		FileType:   lang,
		Role:       RoleFor(p, lang, w.manifest),
		Depth:      depth,
		Method:     method,
		Size:       info.Size,
		Binary:     binary,
		Via:        via,
	})
}

func (w *walker) emitExternal(target string, role contract.Role, depth int, method contract.DiscoveryMethod, lang contract.Language, via *contract.Reference) {
	if depth > w.limits.MaxScanDepth {
		return
	}
	key := "external:" + target
	if role == contract.RoleLibrary {
		key = "external:" + string(lang) + ":" + target
	}
	if _, seen := w.emitted[key]; seen {
		return
	}
	w.emitted[key] = len(w.st.Discovered)
	ft := contract.DetectLanguage(target)
	if IsURL(target) {
		ft = contract.LangUnknown
	}
	w.st.Discovered = append(w.st.Discovered, contract.FileReference{
		Path:       target,
		SourceType: contract.SourceExternal,
		FileType:   ft,
		Role:       role,
		Depth:      depth,
		Method:     method,
		Language:   lang,
		Via:        via,
	})
}

// emitBlock adds a scan target for a fenced block whose language has rules.
func (w *walker) emitBlock(it item, b parser.Block) {
	if !rules.HasRules(b.Language) || it.depth+1 > w.limits.MaxScanDepth {
		return
	}
	p := contract.BlockPath(it.path, b.StartLine, b.EndLine)
	if _, seen := w.emitted[p]; seen {
		return
	}
	parent := w.st.Discovered[w.emitted[it.path]]
	w.emitted[p] = len(w.st.Discovered)
	w.st.Discovered = append(w.st.Discovered, contract.FileReference{
		Path:       p,
		SourceType: contract.SourceLocal,
		FileType:   b.Language,
		Role:       parent.Role,
		Depth:      it.depth + 1,
		Method:     contract.MethodCodeBlock,
		Size:       int64(len(b.Text)),
		Via: &contract.Reference{
			File:    it.path,
			Line:    b.StartLine,
			LineEnd: b.EndLine,
			Kind:    contract.RefScript,
			Parent:  it.via,
		},
	})
}
