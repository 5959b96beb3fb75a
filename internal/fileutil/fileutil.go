// Package fileutil moves, trashes and deletes files on behalf of the
// duplicate cleanup
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// MoveFile moves src into destDir and returns the new path.
// If a file with the same name exists, it appends a counter (e.g., file_1.jpg).
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	destName := uniqueName(filepath.Base(src), func(name string) bool {
		_, err := os.Lstat(filepath.Join(destDir, name))
		return errors.Is(err, os.ErrNotExist)
	})

	dest := filepath.Join(destDir, destName)
	if err := rename(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Delete removes a single file
func Delete(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to delete directory %s", path)
	}
	return os.Remove(path)
}

// uniqueName returns filename, or filename with the first free counter
// appended. available reports whether a name can be used.
func uniqueName(filename string, available func(string) bool) string {
	if available(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if available(candidate) {
			return candidate
		}
	}
}

// rename moves a file, copying then removing when src and dest are on
// different devices
func rename(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// MoveToTrash moves a file to the system trash.
// - Linux and BSD: $XDG_DATA_HOME/Trash with .trashinfo metadata
// - macOS: ~/.Trash
// - Windows: Recycle Bin
func MoveToTrash(src string) error {
	switch runtime.GOOS {
	case "windows":
		return moveToWindowsTrash(src)
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		_, err = MoveFile(src, filepath.Join(home, ".Trash"))
		return err
	default:
		root, err := freedesktopTrash()
		if err != nil {
			return err
		}
		return moveToFreedesktopTrash(src, root)
	}
}

// freedesktopTrash returns the home trash directory
func freedesktopTrash() (string, error) {
	if data := os.Getenv("XDG_DATA_HOME"); data != "" {
		return filepath.Join(data, "Trash"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "Trash"), nil
}

// moveToFreedesktopTrash moves src under root/files and writes the matching
// root/info/<name>.trashinfo
func moveToFreedesktopTrash(src, root string) error {
	filesDir := filepath.Join(root, "files")
	infoDir := filepath.Join(root, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create trash directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	// The name must be free in both directories
	name := uniqueName(filepath.Base(src), func(name string) bool {
		_, errFile := os.Lstat(filepath.Join(filesDir, name))
		_, errInfo := os.Lstat(filepath.Join(infoDir, name+".trashinfo"))
		return errors.Is(errFile, os.ErrNotExist) && errors.Is(errInfo, os.ErrNotExist)
	})

	infoPath := filepath.Join(infoDir, name+".trashinfo")
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		absPath,
		time.Now().Format("2006-01-02T15:04:05"))
	if err := os.WriteFile(infoPath, []byte(info), 0600); err != nil {
		return err
	}

	if err := rename(src, filepath.Join(filesDir, name)); err != nil {
		os.Remove(infoPath)
		return err
	}
	return nil
}
