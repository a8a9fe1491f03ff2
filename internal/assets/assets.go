// Package assets deploys built static files into the serving
// directory. The swap is clear-then-copy; the orchestrator holds the
// target lock for the whole run, so no other deploy races the window.
package assets

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Summary reports what a sync copied.
type Summary struct {
	Files int
	Bytes int64
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files, %d bytes", s.Files, s.Bytes)
}

// Sync replaces the contents of dstDir with the tree under srcDir,
// preserving file modes. The destination directory itself is created
// if missing and kept (its contents are cleared), so a webserver
// serving from it never loses the directory out from under itself.
func Sync(srcDir, dstDir string) (Summary, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return Summary{}, fmt.Errorf("stat source %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("source %s is not a directory", srcDir)
	}

	if err := clearDir(dstDir); err != nil {
		return Summary{}, err
	}

	var sum Summary
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dstDir, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !d.Type().IsRegular() {
			// Symlinks and specials have no business in a build
			// output tree; skip rather than copy link targets.
			return nil
		}

		n, err := copyFile(path, target, d)
		if err != nil {
			return err
		}
		sum.Files++
		sum.Bytes += n
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("copy %s -> %s: %w", srcDir, dstDir, err)
	}
	return sum, nil
}

func clearDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	return nil
}

func copyFile(src, dst string, d fs.DirEntry) (int64, error) {
	info, err := d.Info()
	if err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, err
	}
	return n, out.Close()
}
