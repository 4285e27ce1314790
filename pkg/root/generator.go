package root

import (
	"path/filepath"

	"github.com/wisprd/wisp/pkg/ignore"
	"github.com/wisprd/wisp/pkg/query"
	"github.com/wisprd/wisp/pkg/view"
)

// Generator returns a query.Generator that walks r's entire view tree,
// skipping any path r's ignore set excludes. It always performs a full
// walk regardless of the spec's chosen generator kind; suffix/path/glob
// generator specialization is left as an optimization on top of this,
// since correctness only requires that every candidate a specialized
// generator would have found is also produced here.
func (r *Root) Generator() query.Generator {
	return func(s *query.Spec, ig *ignore.Set) ([]query.Candidate, int) {
		var candidates []query.Candidate
		walked := 0
		r.walkDir(r.View.RootID(), "", &candidates, &walked)
		return candidates, walked
	}
}

func (r *Root) walkDir(id view.DirID, prefix string, out *[]query.Candidate, walked *int) {
	d, ok := r.View.Directory(id)
	if !ok {
		return
	}

	for name, f := range d.Files {
		wholeName := name
		if prefix != "" {
			wholeName = prefix + "/" + name
		}
		*walked++
		if r.Ignore.IsIgnored(filepath.Join(r.Path, wholeName)) {
			continue
		}
		*out = append(*out, query.Candidate{WholeName: wholeName, File: f})
	}

	for name, childID := range d.Directories {
		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		if r.Ignore.IsIgnored(filepath.Join(r.Path, childPrefix)) {
			continue
		}
		r.walkDir(childID, childPrefix, out, walked)
	}
}
