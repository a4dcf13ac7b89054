package domain

import "context"

// Phase names the step of a pipeline run that failed.
// Every pipeline failure is attributable to exactly one phase.
type Phase string

const (
	PhaseSync      Phase = "sync"
	PhasePrepare   Phase = "prepare"
	PhaseConfigure Phase = "configure"
	PhaseCompile   Phase = "compile"
	PhasePackage   Phase = "package"
	PhaseArchive   Phase = "archive"
	PhasePublish   Phase = "publish"
)

// Release is a GitHub release as far as asset reconciliation cares.
type Release struct {
	ID      int64
	TagName string
	Name    string
	Assets  []Asset
}

// Asset is a single file attached to a release.
type Asset struct {
	ID                 int64
	Name               string
	Size               int64
	BrowserDownloadURL string
}

// FindAsset returns the first asset whose name equals name exactly.
func (r Release) FindAsset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// Runnable is one build chain the job supervisor can run. Run must return
// promptly once ctx is cancelled.
type Runnable interface {
	Name() string
	Run(ctx context.Context) error
}
