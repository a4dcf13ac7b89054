// Package release keeps a single named asset on a GitHub release in sync
// with a freshly built artifact.
package release

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/waabox/gitpress/internal/domain"
)

// Reconciler replaces release assets through a domain.ReleaseStore.
type Reconciler struct {
	store  domain.ReleaseStore
	logger *slog.Logger
}

// NewReconciler creates a Reconciler. A nil logger uses slog.Default().
func NewReconciler(store domain.ReleaseStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Publish makes the file at path the release's asset called assetName and
// returns its download URL. An existing asset with that exact name is deleted
// first, so a failed upload leaves the release without the asset.
func (r *Reconciler) Publish(ctx context.Context, repo domain.Repository, releaseID int64, assetName, path string) (string, error) {
	logger := r.logger.With("release", releaseID, "asset", assetName)

	rel, err := r.store.GetRelease(ctx, repo, releaseID)
	if err != nil {
		return "", fmt.Errorf("fetching release: %w", err)
	}

	if existing, ok := rel.FindAsset(assetName); ok {
		logger.Info("deleting existing asset", "asset_id", existing.ID)
		if err := r.store.DeleteAsset(ctx, repo, existing.ID); err != nil {
			return "", fmt.Errorf("deleting existing asset: %w", err)
		}
	}

	logger.Info("uploading asset", "path", path)
	uploaded, err := r.store.UploadAsset(ctx, repo, releaseID, assetName, path)
	if err != nil {
		return "", fmt.Errorf("uploading asset: %w", err)
	}
	logger.Info("asset uploaded", "url", uploaded.BrowserDownloadURL)
	return uploaded.BrowserDownloadURL, nil
}
