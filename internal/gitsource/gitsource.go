package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsURL reports whether a deck root names a git repository rather than a
// local path: an http(s)/ssh/git URL, or scp-like "user@host:path".
func IsURL(s string) bool {
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		switch u.Scheme {
		case "http", "https", "ssh", "git":
			return true
		}
	}
	return isSCPLike(s)
}

func isSCPLike(s string) bool {
	at := strings.Index(s, "@")
	colon := strings.Index(s, ":")
	return at > 0 && colon > at+1 && !strings.Contains(s[:colon], "/")
}

// LocalPath maps a repository URL to its checkout directory under baseDir,
// host first, e.g. github.com/user/repo.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || parsedURL.Host == "" {
		if isSCPLike(repoURL) {
			host, repoPath, _ := strings.Cut(repoURL, ":")
			_, host, _ = strings.Cut(host, "@")
			return join(baseDir, host, repoPath)
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return join(baseDir, parsedURL.Host, parsedURL.Path)
}

func join(baseDir, host, repoPath string) (string, error) {
	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	local := filepath.Join(baseDir, host, filepath.FromSlash(repoPath))
	// Refuse paths like "host/../../etc" escaping the cache.
	rel, err := filepath.Rel(baseDir, local)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL %s does not map into %s", host+"/"+repoPath, baseDir)
	}
	return local, nil
}

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does. Progress is logged to log.
func Sync(ctx context.Context, log *slog.Logger, repoURL, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("Cloning repository", "url", repoURL, "path", localPath)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory for %s: %w", repoURL, err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL: repoURL,
		})
		if err != nil {
			// Don't leave a half-cloned directory that the next run would try to pull.
			os.RemoveAll(localPath)
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		log.Info("Clone successful", "url", repoURL)

	case err == nil:
		log.Info("Pulling latest changes", "url", repoURL, "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		log.Info("Pull successful (or already up-to-date)", "url", repoURL)

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}
