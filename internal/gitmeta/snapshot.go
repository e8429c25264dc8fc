// Package gitmeta captures git repository metadata for run records.
package gitmeta

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gantrybuild/gantry/internal/domain"
)

// Snapshot inspects the repository containing dir and returns its
// checked-out branch, HEAD commit, and worktree dirtiness.
//
// A directory outside any git repository, or a repository without
// commits, yields (nil, nil): runs simply carry no git metadata in
// that case.
func Snapshot(dir string) (*domain.GitInfo, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		// A freshly initialized repository has no commits yet.
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	info := &domain.GitInfo{
		Commit: head.Hash().String(),
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}
	info.Dirty = !status.IsClean()

	return info, nil
}
