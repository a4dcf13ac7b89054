package build

import (
	"fmt"
	"sort"

	"github.com/waabox/gitpress/internal/domain"
)

// Index maps a branch name to the pipelines configured for it, in
// configuration order. It is built once at startup and never modified.
type Index struct {
	branches  map[string][]*Pipeline
	runnables map[string][]domain.Runnable
}

// NewIndex groups pipelines by branch. Two pipelines whose repo dirs are
// equal or nested is an error since resetting one would wipe the other.
func NewIndex(pipelines []*Pipeline) (*Index, error) {
	idx := &Index{
		branches:  make(map[string][]*Pipeline),
		runnables: make(map[string][]domain.Runnable),
	}
	for i, p := range pipelines {
		for _, other := range pipelines[:i] {
			if Overlapping(other.repoDir, p.repoDir) {
				return nil, fmt.Errorf("pipelines %s and %s share repo dir %s and %s", other.name, p.name, other.repoDir, p.repoDir)
			}
		}
		idx.branches[p.branch] = append(idx.branches[p.branch], p)
		idx.runnables[p.branch] = append(idx.runnables[p.branch], p)
	}
	return idx, nil
}

// Lookup returns the pipelines for branch as runnables, or nil when the
// branch is not configured.
func (i *Index) Lookup(branch string) []domain.Runnable {
	return i.runnables[branch]
}

// Pipelines returns the pipelines for branch.
func (i *Index) Pipelines(branch string) []*Pipeline {
	return i.branches[branch]
}

// Branches returns the configured branch names, sorted.
func (i *Index) Branches() []string {
	names := make([]string, 0, len(i.branches))
	for name := range i.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
