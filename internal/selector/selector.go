// Package selector decides which files in an extracted tree get reviewed and
// in what order.
package selector

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ReviewableExts lists the lowercase extensions worth reviewing.
// Files without any extension (Dockerfile, Makefile) are also included.
var ReviewableExts = map[string]bool{
	// Frontend
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".mts": true,
	".vue": true, ".svelte": true,
	".css": true, ".scss": true, ".sass": true, ".less": true,
	".html": true, ".htm": true, ".xml": true,

	// Backend
	".py": true, ".java": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".go": true, ".rs": true, ".php": true, ".rb": true, ".swift": true, ".kt": true,
	".cs": true, ".scala": true, ".clj": true, ".groovy": true,

	// Config and data
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".env": true,
	".dockerfile": true, ".sql": true,

	// Markup
	".md": true, ".mdx": true, ".rst": true,
}

// IgnoreDirs are pruned before descending.
var IgnoreDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, ".git": true, ".venv": true,
	"venv": true, ".env": true, "dist": true, "build": true, "out": true,
	".next": true, ".nuxt": true, ".cache": true, "coverage": true,
	".idea": true, ".vscode": true, "target": true, "bin": true, "obj": true,
}

// IgnoreFiles are skipped by exact name.
var IgnoreFiles = map[string]bool{
	".gitignore": true, ".env.example": true, "package-lock.json": true,
	"yarn.lock": true, "pnpm-lock.yaml": true, ".DS_Store": true,
}

// PriorityFiles are entry points and manifests reviewed before everything else.
// Matching is by exact, case-sensitive name.
var PriorityFiles = map[string]bool{
	"app.jsx": true, "app.tsx": true, "index.jsx": true, "index.tsx": true,
	"main.py": true, "main.js": true, "app.py": true, "server.py": true,
	"config.py": true, "package.json": true, "requirements.txt": true,
	"dockerfile": true, "docker-compose.yml": true,
}

// Entry is a selected file.
type Entry struct {
	Path         string // absolute or root-joined path on disk
	RelativePath string // slash-separated path relative to the walk root
	Name         string // base name
}

// Reviewable reports whether a file name passes the ignore and extension rules.
func Reviewable(name string) bool {
	if IgnoreFiles[name] {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == "" || ReviewableExts[ext]
}

// Select walks root and returns the review queue: priority files first, then
// everything else, each group ordered by relative path. Paths below root that
// cannot be read are left out and reported to skipped, which may be nil. An
// unreadable root is an error.
func Select(root string, skipped func(path string, err error)) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if skipped != nil {
				skipped(path, err)
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && IgnoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !Reviewable(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:         path,
			RelativePath: filepath.ToSlash(rel),
			Name:         d.Name(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	Sort(entries)
	return entries, nil
}

// FromPaths applies the same filters as Select to an explicit list of
// slash-separated paths relative to root, then sorts them.
func FromPaths(root string, relPaths []string) []Entry {
	seen := make(map[string]bool, len(relPaths))
	var entries []Entry
	for _, rel := range relPaths {
		rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
		if rel == "" || seen[rel] || ignoredPath(rel) {
			continue
		}
		seen[rel] = true
		name := path.Base(rel)
		if !Reviewable(name) {
			continue
		}
		entries = append(entries, Entry{
			Path:         filepath.Join(root, filepath.FromSlash(rel)),
			RelativePath: rel,
			Name:         name,
		})
	}
	Sort(entries)
	return entries
}

func ignoredPath(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if IgnoreDirs[dir] {
			return true
		}
	}
	return false
}

// Sort orders entries by (not a priority file, relative path).
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := PriorityFiles[entries[i].Name], PriorityFiles[entries[j].Name]
		if pi != pj {
			return pi
		}
		return entries[i].RelativePath < entries[j].RelativePath
	})
}
