package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		root, p, want string
	}{
		{"/proj", ".cogloop/trace.db", filepath.Join("/proj", ".cogloop", "trace.db")},
		{"/proj", "/abs/trace.db", "/abs/trace.db"},
		{"/proj", MemoryPath, MemoryPath},
		{"/proj", "", ""},
	}
	for _, tt := range tests {
		if got := Resolve(tt.root, tt.p); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.root, tt.p, got, tt.want)
		}
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"", ""},
		{"/home/user/.cogloop/trace.db", ".../.cogloop/trace.db"},
		{"trace.db", "trace.db"},
		{"/trace.db", "trace.db"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.path); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestValidatePath(t *testing.T) {
	allowedDir := t.TempDir()
	otherDir := t.TempDir()

	tests := []struct {
		name        string
		path        string
		allowedDirs []string
		errContains string
	}{
		{"inside allowed dir", filepath.Join(allowedDir, "run.trace.gz"), []string{allowedDir}, ""},
		{"missing subdirectory", filepath.Join(allowedDir, "a", "b", "run.trace.gz"), []string{allowedDir}, ""},
		{"allowed dir itself", allowedDir, []string{allowedDir}, ""},
		{"second allowed dir", filepath.Join(otherDir, "x"), []string{allowedDir, otherDir}, ""},
		{"dot-dot traversal", filepath.Join(allowedDir, "..", "etc", "passwd"), []string{allowedDir}, "outside allowed directories"},
		{"outside", filepath.Join(otherDir, "run.trace.gz"), []string{allowedDir}, "outside allowed directories"},
		{"prefix sibling", allowedDir + "evil/x", []string{allowedDir}, "outside allowed directories"},
		{"empty path", "", []string{allowedDir}, "path is empty"},
		{"no allowed dirs", filepath.Join(allowedDir, "x"), nil, "no allowed directories"},
		{"null byte", allowedDir + "/x\x00y", []string{allowedDir}, "null byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowedDirs)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("ValidatePath() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidatePath() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestValidatePath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on Windows")
	}
	allowedDir := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(allowedDir, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}
	err := ValidatePath(filepath.Join(link, "run.trace.gz"), []string{allowedDir})
	if err == nil || !strings.Contains(err.Error(), "outside allowed directories") {
		t.Errorf("symlink escape error = %v", err)
	}
}

func TestExportDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dirs, err := ExportDirs("/proj")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join("/proj", ".cogloop", "exports"),
		filepath.Join(home, ".cogloop", "exports"),
	}
	if len(dirs) != 2 || dirs[0] != want[0] || dirs[1] != want[1] {
		t.Errorf("ExportDirs() = %v, want %v", dirs, want)
	}
}
