package discovery

import (
	"sort"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// Filter orders the discovered artifacts into the scan queue and enforces
// the size and count limits. External references pass through unchecked;
// they are never read. The input state is not modified.
func Filter(in *contract.AnalyzerState, limits contract.ScanLimits, log *zap.Logger) *contract.AnalyzerState {
	if log == nil {
		log = zap.NewNop()
	}
	st := in.Clone()

	ordered := make([]contract.FileReference, len(st.Discovered))
	copy(ordered, st.Discovered)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if ra, rb := a.Role.Rank(), b.Role.Rank(); ra != rb {
			return ra < rb
		}
		return a.FileType.Rank() < b.FileType.Rank()
	})

	st.ScanQueue = st.ScanQueue[:0]
	accepted := 0
	for _, ref := range ordered {
		if ref.SourceType == contract.SourceExternal {
			st.ScanQueue = append(st.ScanQueue, ref)
			continue
		}
		reason := ""
		switch {
		case ref.Binary || ref.FileType == contract.LangBinary:
			reason = contract.SkipBinary
		case limits.MaxFileSize > 0 && ref.Size > limits.MaxFileSize:
			reason = contract.SkipTooLarge
		case limits.MaxFileCount > 0 && accepted >= limits.MaxFileCount:
			reason = contract.SkipTooMany
		}
		if reason != "" {
			log.Debug("skipping file", zap.String("path", ref.Path), zap.String("reason", reason))
			st.Skip(ref.Path, reason)
			continue
		}
		accepted++
		st.ScanQueue = append(st.ScanQueue, ref)
	}
	return st
}
