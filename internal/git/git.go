// Package git lists changed files in a working tree so a review can be
// limited to what is about to be committed or merged.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ErrNotRepository is returned when a path is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Client defines the git operations a changed-files review needs.
type Client interface {
	RepoRoot(path string) (string, error)
	HeadCommit(path string) (string, error)
	ChangedFiles(path, base string) ([]string, error)
}

// RealClient implements Client using the git binary.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	root, err := gitCmd(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotRepository, path)
	}
	return root, nil
}

func (c *RealClient) HeadCommit(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--short", "HEAD")
}

// ChangedFiles returns root-relative paths that differ from base in the
// working tree, staged or not, plus untracked files that are not ignored.
// Deleted files are left out. An empty base means HEAD.
func (c *RealClient) ChangedFiles(path, base string) ([]string, error) {
	root, err := c.RepoRoot(path)
	if err != nil {
		return nil, err
	}
	if base == "" {
		base = "HEAD"
	}

	tracked, err := gitCmd(root, "diff", "--name-only", "--diff-filter=ACMR", base, "--")
	if err != nil {
		return nil, err
	}
	untracked, err := gitCmd(root, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return ParseNameList(tracked + "\n" + untracked), nil
}

// ParseNameList splits newline-separated git path output into a sorted,
// de-duplicated list.
func ParseNameList(output string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		names = append(names, line)
	}
	sort.Strings(names)
	return names
}
