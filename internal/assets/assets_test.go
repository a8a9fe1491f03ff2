package assets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSyncCopiesTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"index.html":       "<html>",
		"assets/app.js":    "console.log(1)",
		"assets/style.css": "body{}",
	})

	sum, err := Sync(src, dst)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if sum.Files != 3 {
		t.Errorf("files = %d, want 3", sum.Files)
	}

	got, err := os.ReadFile(filepath.Join(dst, "assets", "app.js"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "console.log(1)" {
		t.Errorf("copied content = %q", got)
	}
}

func TestSyncClearsStaleFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"index.html": "new"})
	writeTree(t, dst, map[string]string{
		"index.html":   "old",
		"old-chunk.js": "stale",
	})

	if _, err := Sync(src, dst); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "old-chunk.js")); !os.IsNotExist(err) {
		t.Error("stale file survived sync")
	}
	got, _ := os.ReadFile(filepath.Join(dst, "index.html"))
	if string(got) != "new" {
		t.Errorf("index.html = %q, want %q", got, "new")
	}
}

func TestSyncKeepsDestinationDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	before, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Sync(src, dst); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	after, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(before, after) {
		t.Error("destination directory was replaced, not cleared")
	}
}

func TestSyncMissingSource(t *testing.T) {
	_, err := Sync(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestSyncSourceNotADir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Sync(src, t.TempDir()); err == nil {
		t.Fatal("expected error for non-directory source")
	}
}

func TestSyncPreservesModes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test asserts unix file modes")
	}
	src := t.TempDir()
	dst := t.TempDir()
	script := filepath.Join(src, "run.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Sync(src, dst); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o755 {
		t.Errorf("mode = %o, want 755", got)
	}
}
