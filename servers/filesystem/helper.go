package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var errAccessDenied = errors.New("access denied")

// resolve turns a client supplied path into an absolute path under one of the roots. Relative
// paths are taken from the first root. Symlinks are followed, and a path that does not exist
// yet is accepted when its nearest existing ancestor resolves inside a root.
func (s *Server) resolve(requested string) (string, error) {
	p := filepath.FromSlash(requested)
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.roots[0], p)
	}
	p = filepath.Clean(p)
	if !s.allowed(p) {
		return "", fmt.Errorf("%w: %s is outside the allowed directories", errAccessDenied, requested)
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		if !s.allowed(resolved) {
			return "", fmt.Errorf("%w: %s links outside the allowed directories", errAccessDenied, requested)
		}
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	// Resolve the nearest existing ancestor and re-attach the missing tail.
	ancestor, tail := filepath.Dir(p), filepath.Base(p)
	for {
		resolved, err := filepath.EvalSymlinks(ancestor)
		if err == nil {
			if !s.allowed(resolved) {
				return "", fmt.Errorf("%w: parent of %s is outside the allowed directories", errAccessDenied, requested)
			}
			return filepath.Join(resolved, tail), nil
		}
		if !errors.Is(err, fs.ErrNotExist) || filepath.Dir(ancestor) == ancestor {
			return "", fmt.Errorf("parent directory of %s: %w", requested, err)
		}
		ancestor, tail = filepath.Dir(ancestor), filepath.Join(filepath.Base(ancestor), tail)
	}
}

func (s *Server) allowed(p string) bool {
	for _, root := range s.roots {
		if isSubpath(p, root) {
			return true
		}
	}
	return false
}

func isSubpath(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// applyEdits replaces each OldText in turn. An exact match wins; otherwise a run of lines that
// matches after trimming surrounding whitespace is replaced, re-indented to the indentation of
// the first matched line.
func applyEdits(content string, edits []EditOperation) (string, error) {
	out := normalizeLineEndings(content)
	for _, edit := range edits {
		oldText := normalizeLineEndings(edit.OldText)
		newText := normalizeLineEndings(edit.NewText)
		if oldText == "" {
			return "", errors.New("edit has empty oldText")
		}

		if strings.Contains(out, oldText) {
			out = strings.Replace(out, oldText, newText, 1)
			continue
		}

		replaced, ok := replaceLoose(out, oldText, newText)
		if !ok {
			return "", fmt.Errorf("could not find a match for edit:\n%s", edit.OldText)
		}
		out = replaced
	}
	return out, nil
}

func replaceLoose(content, oldText, newText string) (string, bool) {
	lines := strings.Split(content, "\n")
	oldLines := strings.Split(oldText, "\n")

	for i := 0; i+len(oldLines) <= len(lines); i++ {
		if !sameTrimmed(lines[i:i+len(oldLines)], oldLines) {
			continue
		}
		indent := leadingWhitespace(lines[i])
		newLines := strings.Split(newText, "\n")
		for j, line := range newLines {
			newLines[j] = indent + strings.TrimLeft(line, " \t")
		}

		out := make([]string, 0, len(lines)-len(oldLines)+len(newLines))
		out = append(out, lines[:i]...)
		out = append(out, newLines...)
		out = append(out, lines[i+len(oldLines):]...)
		return strings.Join(out, "\n"), true
	}
	return content, false
}

func sameTrimmed(a, b []string) bool {
	for i := range b {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// unifiedDiff renders the change from before to after as patch text in a fenced block. The
// fence grows until it does not occur in the diff itself.
func unifiedDiff(path, before, after string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(normalizeLineEndings(before), normalizeLineEndings(after))

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s (original)\n+++ %s (modified)\n", path, path)
	b.WriteString(dmp.PatchToText(patches))
	diff := b.String()

	fence := "```"
	for strings.Contains(diff, fence) {
		fence += "`"
	}
	return fmt.Sprintf("%sdiff\n%s%s\n", fence, diff, fence)
}

func (s *Server) buildTree(dir string) ([]treeEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	tree := make([]treeEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		node := treeEntry{Name: entry.Name(), Type: "file"}
		if entry.IsDir() {
			node.Type = "directory"
			children, err := s.buildTree(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		tree = append(tree, node)
	}
	return tree, nil
}

// searchFiles walks dir for entries whose name contains pattern, ignoring case. Exclude
// patterns are globs matched against the slash separated path relative to dir; a pattern
// without a wildcard excludes any directory of that name.
func (s *Server) searchFiles(dir, pattern string, exclude []string) ([]string, error) {
	var excluded []glob.Glob
	for _, p := range exclude {
		patterns := []string{p}
		if !strings.Contains(p, "*") {
			patterns = append(patterns, "**/"+p)
		}
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
			excluded = append(excluded, g)
		}
	}

	needle := strings.ToLower(pattern)
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		for _, g := range excluded {
			if g.Match(filepath.ToSlash(rel)) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if _, err := s.resolve(path); err != nil {
				return nil
			}
		}
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}
