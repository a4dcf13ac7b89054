package domain

import "context"

// ReleaseStore is the port interface the asset reconciler publishes through.
// The domain does not know about the GitHub REST API; the github package adapts it.
type ReleaseStore interface {
	GetRelease(ctx context.Context, repo Repository, releaseID int64) (Release, error)
	DeleteAsset(ctx context.Context, repo Repository, assetID int64) error
	UploadAsset(ctx context.Context, repo Repository, releaseID int64, name string, path string) (Asset, error)
}
