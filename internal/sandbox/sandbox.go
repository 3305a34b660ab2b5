// Package sandbox validates tool names and workspace-relative paths before
// they reach routing or process launch. Everything here is fail-closed: a
// name or path is rejected unless it provably stays inside the boundary.
package sandbox

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ValidateToolName rejects names that are unusable as route parameters or
// process identifiers: empty strings, whitespace, path separators (raw or
// URL-encoded) and anything outside [A-Za-z0-9_-].
func ValidateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("tool name contains whitespace")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("tool name contains path separator")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("tool name contains parent directory reference")
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "%2f") || strings.Contains(lower, "%5c") {
		return fmt.Errorf("tool name contains encoded path separator")
	}
	if strings.Contains(name, "%25") {
		return fmt.Errorf("tool name contains double-encoded characters")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("tool name contains invalid character %q", r)
		}
	}
	return nil
}

// ValidatePath resolves requestedPath inside workspaceRoot and returns the
// absolute result. Traversal is rejected in raw, URL-encoded and
// double-encoded forms, and any symlink component pointing outside the root
// is refused even when the final target does not exist.
func ValidatePath(workspaceRoot, requestedPath string) (string, error) {
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("invalid workspace root: %w", err)
	}
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return "", fmt.Errorf("workspace root not found: %w", err)
	}
	// Pin the root itself to its real location so containment checks hold
	// when the root lives behind a symlink (/tmp on some systems).
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = filepath.Clean(real)
	}

	if err := rejectTraversal(requestedPath); err != nil {
		return "", err
	}
	decoded, err := url.QueryUnescape(requestedPath)
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding: %w", err)
	}
	if err := rejectTraversal(decoded); err != nil {
		return "", fmt.Errorf("path traversal after decoding: %w", err)
	}
	// A second unescape catches %252e-style double encoding.
	if twice, err := url.QueryUnescape(decoded); err == nil && twice != decoded {
		if err := rejectTraversal(twice); err != nil {
			return "", fmt.Errorf("path traversal after double decoding: %w", err)
		}
	}

	if err := checkSymlinks(root, decoded); err != nil {
		return "", err
	}

	full := filepath.Join(root, decoded)
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		// The target may not exist yet. Symlink components were already
		// vetted, so the lexical path is safe to use.
		resolved = full
	}
	resolved = filepath.Clean(resolved)
	if !within(root, resolved) {
		return "", fmt.Errorf("path escapes workspace: %s not under %s", resolved, root)
	}
	return resolved, nil
}

// rejectTraversal screens one representation of a path for the common
// traversal shapes. Callers run it again after each round of URL decoding.
func rejectTraversal(path string) error {
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("path cannot be absolute")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal detected: contains ..")
	}
	if strings.Contains(path, "//") {
		return fmt.Errorf("path traversal detected: contains //")
	}
	if strings.Contains(path, "/.") {
		return fmt.Errorf("path traversal detected: contains /.")
	}
	return nil
}

// checkSymlinks walks path one component at a time and rejects any symlink
// whose target, or chain of targets, leaves the workspace root. Absolute
// symlink targets are always refused.
func checkSymlinks(root, path string) error {
	cur := root
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == "" || part == "." {
			continue
		}
		cur = filepath.Join(cur, part)
		target, err := os.Readlink(cur)
		if err != nil {
			// Not a symlink (or does not exist yet).
			continue
		}
		if filepath.IsAbs(target) {
			return fmt.Errorf("symlink escapes workspace: %s has absolute target", part)
		}
		resolved := filepath.Clean(filepath.Join(filepath.Dir(cur), target))
		if !within(root, resolved) {
			return fmt.Errorf("symlink escapes workspace: %s -> %s", part, resolved)
		}
		if chained, err := filepath.EvalSymlinks(resolved); err == nil {
			if !within(root, filepath.Clean(chained)) {
				return fmt.Errorf("symlink chain escapes workspace: %s resolves to %s", part, chained)
			}
		}
		// Continue the walk from wherever the link landed.
		cur = resolved
	}
	return nil
}

// within reports whether path equals root or sits below it. The separator
// check keeps sibling directories like /ws and /ws2 apart.
func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
