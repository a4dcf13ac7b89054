// Package github is a small GitHub REST client covering the release asset
// endpoints gitpress publishes through.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/waabox/gitpress/internal/domain"
)

const (
	defaultAPIURL     = "https://api.github.com"
	defaultUploadsURL = "https://uploads.github.com"
	apiVersion        = "2022-11-28"
	userAgent         = "gitpress"
)

// Client implements domain.ReleaseStore against the GitHub REST API.
type Client struct {
	token      string
	apiURL     string
	uploadsURL string
	client     *http.Client
}

// NewClient creates a GitHub client.
// apiURL and uploadsURL are used for testing; pass empty strings to use the
// real GitHub endpoints. The HTTP client has no timeout since asset uploads
// can take minutes; every request is bound to its context instead.
func NewClient(token, apiURL, uploadsURL string) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if uploadsURL == "" {
		uploadsURL = defaultUploadsURL
	}
	return &Client{
		token:      token,
		apiURL:     strings.TrimRight(apiURL, "/"),
		uploadsURL: strings.TrimRight(uploadsURL, "/"),
		client:     &http.Client{},
	}
}

// GetRelease returns a release with its assets.
func (c *Client) GetRelease(ctx context.Context, repo domain.Repository, releaseID int64) (domain.Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d", c.apiURL, repo.Owner, repo.Name, releaseID)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Release{}, err
	}
	var raw release
	if err := c.do(req, &raw); err != nil {
		return domain.Release{}, fmt.Errorf("getting release %d: %w", releaseID, err)
	}
	return raw.toRelease(), nil
}

// DeleteAsset deletes a release asset by ID.
func (c *Client) DeleteAsset(ctx context.Context, repo domain.Repository, assetID int64) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", c.apiURL, repo.Owner, repo.Name, assetID)
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("deleting asset %d: %w", assetID, err)
	}
	return nil
}

// UploadAsset streams the file at path to the release as an asset called name.
func (c *Client) UploadAsset(ctx context.Context, repo domain.Repository, releaseID int64, name, path string) (domain.Asset, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("opening asset: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return domain.Asset{}, fmt.Errorf("reading asset size: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		c.uploadsURL, repo.Owner, repo.Name, releaseID, url.QueryEscape(name))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, file)
	if err != nil {
		return domain.Asset{}, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	var raw asset
	if err := c.do(req, &raw); err != nil {
		return domain.Asset{}, fmt.Errorf("uploading asset %s: %w", name, err)
	}
	return raw.toAsset(), nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// do sends req and decodes a JSON body into target. A nil target discards
// the body.
func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// release is the raw GitHub API response shape for a release.
type release struct {
	ID      int64   `json:"id"`
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Assets  []asset `json:"assets"`
}

func (r release) toRelease() domain.Release {
	assets := make([]domain.Asset, len(r.Assets))
	for i, a := range r.Assets {
		assets[i] = a.toAsset()
	}
	return domain.Release{
		ID:      r.ID,
		TagName: r.TagName,
		Name:    r.Name,
		Assets:  assets,
	}
}

// asset is the raw GitHub API response shape for a release asset.
type asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (a asset) toAsset() domain.Asset {
	return domain.Asset{
		ID:                 a.ID,
		Name:               a.Name,
		Size:               a.Size,
		BrowserDownloadURL: a.BrowserDownloadURL,
	}
}
