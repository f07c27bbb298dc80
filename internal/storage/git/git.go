// Package git records the pantry item files of the data directory in a git
// repository so every change to the pantry can be audited.
//
// It uses go-git, so no git binary is required.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of the history.
type Commit struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	Date        time.Time `json:"date"`
}

// Repo is a git repository rooted at the data directory.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository at dir, initializing it when needed.
func Open(dir, defaultName, defaultEmail string) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return &Repo{dir: dir, defaultName: defaultName, defaultEmail: defaultEmail, repo: repo}, nil
}

// Commit stages every change under prefix (a slash separated path relative to
// the repository root) and commits it. Files outside prefix are never staged.
// It returns false when there was nothing to commit.
func (r *Repo) Commit(ctx context.Context, author Author, msg, prefix string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	staged := 0
	for file, st := range status {
		if !underPrefix(file, prefix) {
			continue
		}
		switch st.Worktree {
		case gogit.Unmodified:
			continue
		case gogit.Deleted:
			if _, err := w.Remove(file); err != nil {
				return false, fmt.Errorf("failed to stage removal of %s: %w", file, err)
			}
		default:
			if _, err := w.Add(file); err != nil {
				return false, fmt.Errorf("failed to stage %s: %w", file, err)
			}
		}
		staged++
	}
	if staged == 0 {
		return false, nil
	}

	name, email := author.Name, author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: name, Email: email, When: now},
		Committer: &object.Signature{Name: r.defaultName, Email: r.defaultEmail, When: now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// History returns up to n commits touching file, newest first. n is capped at
// 1000; n <= 0 means 1000.
func (r *Repo) History(ctx context.Context, file string, n int) ([]*Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	it, err := r.repo.Log(&gogit.LogOptions{FileName: &file})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []*Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer it.Close()

	commits := []*Commit{}
	for len(commits) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:        c.Hash.String(),
			Message:     subject,
			Author:      c.Author.Name,
			AuthorEmail: c.Author.Email,
			Date:        c.Author.When,
		})
	}
	return commits, nil
}

func underPrefix(file, prefix string) bool {
	if prefix == "" || prefix == "." {
		return true
	}
	prefix = path.Clean(prefix)
	return file == prefix || strings.HasPrefix(file, prefix+"/")
}
