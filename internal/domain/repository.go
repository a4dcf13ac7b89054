package domain

import "fmt"

// Repository identifies the remote repository that is built and released.
type Repository struct {
	Owner     string
	Name      string
	RemoteURL string
}

// FullName returns the "owner/name" form GitHub uses in webhook payloads.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// GitHubCloneURL returns the public HTTPS clone URL for a GitHub repository.
func GitHubCloneURL(owner, name string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, name)
}
