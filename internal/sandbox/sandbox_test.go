package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToolName_Valid(t *testing.T) {
	for _, name := range []string{"echo", "filesystem", "my-tool", "my_tool", "tool123", "Tool", "TOOL", "a", "Z9"} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, ValidateToolName(name))
		})
	}
}

func TestValidateToolName_Invalid(t *testing.T) {
	cases := []struct {
		desc string
		name string
	}{
		{"empty", ""},
		{"slash", "tool/name"},
		{"backslash", `tool\name`},
		{"space", "tool name"},
		{"tab", "tool\tname"},
		{"newline", "tool\nname"},
		{"parent dir", "../tool"},
		{"parent dir at end", "tool/.."},
		{"encoded slash", "tool%2fname"},
		{"encoded slash upper", "tool%2Fname"},
		{"encoded backslash", "tool%5cname"},
		{"double-encoded slash", "tool%252fname"},
		{"at sign", "tool@name"},
		{"hash", "tool#name"},
		{"dollar", "tool$name"},
		{"dot", "tool.name"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Error(t, ValidateToolName(tc.name), "name %q", tc.name)
		})
	}
}

func TestValidatePath_InsideWorkspace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "data.txt"), []byte("x"), 0o644))

	cases := []struct {
		desc string
		path string
	}{
		{"current dir", "."},
		{"subdir", "sub"},
		{"file in subdir", "sub/data.txt"},
		{"dot slash file", "./data.txt"},
		{"nonexistent file", "sub/missing.txt"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			resolved, err := ValidatePath(root, tc.path)
			require.NoError(t, err)
			assert.True(t, within(mustReal(t, root), resolved),
				"resolved %q outside workspace %q", resolved, root)
		})
	}
}

func TestValidatePath_Traversal(t *testing.T) {
	root := t.TempDir()

	cases := []struct {
		desc string
		path string
	}{
		{"parent dir", "../etc"},
		{"encoded parent dir", "..%2fetc"},
		{"double-encoded parent dir", "..%252fetc"},
		{"backslash parent dir", `..\etc`},
		{"double slash", "//etc/passwd"},
		{"slash dot", "/."},
		{"absolute path", "/etc/passwd"},
		{"encoded dotdot slash", "%2e%2e%2fetc"},
		{"fully double-encoded", "%252e%252e%252fetc"},
		{"mixed encoding", ".%2e/"},
		{"leading encoded dotdot", "/%2e%2e"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := ValidatePath(root, tc.path)
			assert.Error(t, err, "path %q", tc.path)
		})
	}
}

func TestValidatePath_AbsoluteSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink("/", link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	_, err := ValidatePath(root, "escape/etc/passwd")
	assert.Error(t, err)

	_, err = ValidatePath(root, "escape")
	assert.Error(t, err)
}

func TestValidatePath_SiblingPrefixNotConfused(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "ws")
	sibling := filepath.Join(parent, "ws2")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	// ws/child -> ../ws2 resolves into the sibling; the separator-aware
	// containment check must not treat ws2 as inside ws.
	if err := os.Symlink("../ws2", filepath.Join(root, "child")); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	_, err := ValidatePath(root, "child/file.txt")
	assert.Error(t, err)
}

func TestValidatePath_SymlinkEscapeWithMissingTarget(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "out")
	if err := os.Symlink("/", link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	// The final file does not exist, so EvalSymlinks on the full path fails;
	// the component walk must still catch the escape.
	_, err := ValidatePath(root, "out/no-such-file-12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes workspace")
}

func TestValidatePath_SymlinkInsideWorkspaceAllowed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real", "f.txt"), []byte("x"), 0o644))
	if err := os.Symlink("real", filepath.Join(root, "alias")); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	resolved, err := ValidatePath(root, "alias/f.txt")
	require.NoError(t, err)
	assert.True(t, within(mustReal(t, root), resolved))
}

func mustReal(t *testing.T, path string) string {
	t.Helper()
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(real)
}
