package git

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waabox/gitpress/internal/domain"
)

// OriginURL reads the .git/config in the given directory and returns the
// url of the origin remote.
func OriginURL(dir string) (string, error) {
	configPath := filepath.Join(dir, ".git", "config")
	f, err := os.Open(configPath)
	if err != nil {
		return "", fmt.Errorf("could not open .git/config: %w", err)
	}
	defer f.Close()

	var inOrigin bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == `[remote "origin"]` {
			inOrigin = true
			continue
		}
		if inOrigin && strings.HasPrefix(line, "[") {
			break
		}
		if inOrigin && strings.HasPrefix(line, "url") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1]), nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading .git/config: %w", err)
	}
	return "", errors.New("no origin remote found in .git/config")
}

// DetectRepository returns the Repository described by the origin remote of
// the checkout in dir.
func DetectRepository(dir string) (domain.Repository, error) {
	url, err := OriginURL(dir)
	if err != nil {
		return domain.Repository{}, err
	}
	return ParseRemoteURL(url)
}

// ParseRemoteURL parses a git remote URL and returns a Repository.
// Supports HTTPS (https://github.com/owner/repo.git) and SSH (git@github.com:owner/repo.git).
// The RemoteURL field in the returned Repository preserves the original input URL unchanged.
func ParseRemoteURL(rawURL string) (domain.Repository, error) {
	originalURL := rawURL
	normalized := strings.TrimSuffix(strings.TrimRight(rawURL, "/"), ".git")

	// SSH format: git@github.com:owner/repo
	if strings.HasPrefix(normalized, "git@") {
		trimmed := strings.TrimPrefix(normalized, "git@")
		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			return domain.Repository{}, fmt.Errorf("invalid SSH remote URL: %s", rawURL)
		}
		ownerRepo := strings.SplitN(parts[1], "/", 2)
		if len(ownerRepo) != 2 || ownerRepo[0] == "" || ownerRepo[1] == "" {
			return domain.Repository{}, fmt.Errorf("invalid SSH remote URL path: %s", parts[1])
		}
		return domain.Repository{
			Owner:     ownerRepo[0],
			Name:      ownerRepo[1],
			RemoteURL: originalURL,
		}, nil
	}

	// HTTPS format: https://github.com/owner/repo
	if strings.HasPrefix(normalized, "https://") || strings.HasPrefix(normalized, "http://") {
		withoutScheme := strings.TrimPrefix(normalized, "https://")
		withoutScheme = strings.TrimPrefix(withoutScheme, "http://")
		parts := strings.SplitN(withoutScheme, "/", 3)
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return domain.Repository{}, fmt.Errorf("invalid HTTPS remote URL: %s", rawURL)
		}
		return domain.Repository{
			Owner:     parts[1],
			Name:      parts[2],
			RemoteURL: originalURL,
		}, nil
	}

	return domain.Repository{}, fmt.Errorf("unsupported remote URL format: %s", rawURL)
}

// SameRemote reports whether two remote URLs name the same repository,
// ignoring a trailing slash or ".git" suffix.
func SameRemote(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(s), "/"), ".git")
	}
	return norm(a) == norm(b)
}
