package release_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/gitpress/internal/domain"
	"github.com/waabox/gitpress/internal/release"
)

type fakeStore struct {
	release   domain.Release
	getErr    error
	deleteErr error
	uploadErr error
	calls     []string
}

func (f *fakeStore) GetRelease(_ context.Context, _ domain.Repository, id int64) (domain.Release, error) {
	f.calls = append(f.calls, fmt.Sprintf("get %d", id))
	return f.release, f.getErr
}

func (f *fakeStore) DeleteAsset(_ context.Context, _ domain.Repository, id int64) error {
	f.calls = append(f.calls, fmt.Sprintf("delete %d", id))
	return f.deleteErr
}

func (f *fakeStore) UploadAsset(_ context.Context, _ domain.Repository, id int64, name, path string) (domain.Asset, error) {
	f.calls = append(f.calls, fmt.Sprintf("upload %d %s %s", id, name, path))
	if f.uploadErr != nil {
		return domain.Asset{}, f.uploadErr
	}
	return domain.Asset{ID: 100, Name: name, BrowserDownloadURL: "https://dl/" + name}, nil
}

var repo = domain.Repository{Owner: "o", Name: "r"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublish_DeletesMatchingAssetBeforeUpload(t *testing.T) {
	store := &fakeStore{release: domain.Release{ID: 5, Assets: []domain.Asset{
		{ID: 1, Name: "other.dmg"},
		{ID: 2, Name: "app.dmg"},
		{ID: 3, Name: "app.dmg"},
	}}}

	url, err := release.NewReconciler(store, quietLogger()).Publish(context.Background(), repo, 5, "app.dmg", "/b/app.dmg")
	require.NoError(t, err)

	assert.Equal(t, "https://dl/app.dmg", url)
	assert.Equal(t, []string{"get 5", "delete 2", "upload 5 app.dmg /b/app.dmg"}, store.calls)
}

func TestPublish_NoMatchingAssetSkipsDelete(t *testing.T) {
	store := &fakeStore{release: domain.Release{ID: 5, Assets: []domain.Asset{{ID: 1, Name: "App.dmg"}}}}

	_, err := release.NewReconciler(store, quietLogger()).Publish(context.Background(), repo, 5, "app.dmg", "/b/app.dmg")
	require.NoError(t, err)
	assert.Equal(t, []string{"get 5", "upload 5 app.dmg /b/app.dmg"}, store.calls)
}

func TestPublish_ErrorsAbortRemainingSteps(t *testing.T) {
	boom := errors.New("boom")
	existing := domain.Release{ID: 5, Assets: []domain.Asset{{ID: 2, Name: "app.dmg"}}}

	tests := []struct {
		name  string
		store *fakeStore
		calls []string
	}{
		{"get", &fakeStore{getErr: boom}, []string{"get 5"}},
		{"delete", &fakeStore{release: existing, deleteErr: boom}, []string{"get 5", "delete 2"}},
		{"upload", &fakeStore{release: existing, uploadErr: boom}, []string{"get 5", "delete 2", "upload 5 app.dmg /p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := release.NewReconciler(tt.store, quietLogger()).Publish(context.Background(), repo, 5, "app.dmg", "/p")
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.calls, tt.store.calls)
		})
	}
}
